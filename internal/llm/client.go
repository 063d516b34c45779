package llm

import (
	"context"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrEmptyCompletion is returned when the provider answers without any usable text.
var ErrEmptyCompletion = errors.New("completion returned no content")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// EnsureUserFirst returns messages unchanged when they open with a user turn;
// otherwise a user-role intent message is prepended. Some providers reject
// conversations that do not start with the user. The input slice is not modified.
func EnsureUserFirst(messages []Message, intent string) []Message {
	if len(messages) > 0 && messages[0].Role == RoleUser {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleUser, Content: intent})
	return append(out, messages...)
}
