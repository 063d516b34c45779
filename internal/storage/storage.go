package storage

import "time"

const (
	OutcomeOK               = "ok"
	OutcomeCompletionFailed = "completion_failed"
	OutcomeDeliveryFailed   = "delivery_failed"

	DeliveryMessages = "messages"
	DeliveryFile     = "file"
)

// Event represents a single handled chat message: the user's text, the
// assistant's response and how it was delivered.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id,omitempty"`
	Scope             string    `json:"scope,omitempty"`
	GuildID           string    `json:"guild_id,omitempty"`
	ChannelID         string    `json:"channel_id"`
	UserID            string    `json:"user_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Outcome           string    `json:"outcome"`
	Delivery          string    `json:"delivery,omitempty"`
	Fragments         int       `json:"fragments,omitempty"`
	Model             string    `json:"model,omitempty"`
	PromptTokens      int       `json:"prompt_tokens,omitempty"`
	CompletionTokens  int       `json:"completion_tokens,omitempty"`
	TotalTokens       int       `json:"total_tokens,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// LoadInteractions should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}

// Nop discards events.
type Nop struct{}

func (Nop) AppendInteraction(Event) error      { return nil }
func (Nop) LoadInteractions() ([]Event, error) { return nil, nil }
