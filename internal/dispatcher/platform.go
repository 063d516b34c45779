package dispatcher

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by Platform.FetchMessage when the referenced
// message no longer exists or is not visible to the bot.
var ErrMessageNotFound = errors.New("message not found")

// Platform is the chat service the dispatcher talks back to.
type Platform interface {
	Send(ctx context.Context, channelID, text string) error
	SendFile(ctx context.Context, channelID, name, content string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*Referenced, error)
	Typing(ctx context.Context, channelID string) error
}

// Inbound is a chat message as seen by the dispatcher.
type Inbound struct {
	ID          string
	ChannelID   string
	GuildID     string // empty for direct messages
	AuthorID    string
	AuthorName  string
	Content     string
	IsBot       bool
	DM          bool
	MentionsBot bool
	ReplyTo     string // id of the message this one replies to
}

// Referenced is a message fetched by id, typically the target of a reply.
type Referenced struct {
	ID          string
	AuthorID    string
	AuthorIsBot bool
	Content     string
}
