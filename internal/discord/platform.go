package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-chatter/internal/dispatcher"
)

// restAPI is the part of *discordgo.Session the bot calls.
type restAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelFileSend(channelID, name string, r io.Reader, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Platform implements dispatcher.Platform on top of the Discord REST API.
type Platform struct {
	api restAPI
}

func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{api: s}
}

func (p *Platform) Send(ctx context.Context, channelID, text string) error {
	_, err := p.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) SendFile(ctx context.Context, channelID, name, content string) error {
	_, err := p.api.ChannelFileSend(channelID, name, strings.NewReader(content), discordgo.WithContext(ctx))
	return err
}

func (p *Platform) React(ctx context.Context, channelID, messageID, emoji string) error {
	return p.api.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (p *Platform) FetchMessage(ctx context.Context, channelID, messageID string) (*dispatcher.Referenced, error) {
	m, err := p.api.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", dispatcher.ErrMessageNotFound, messageID)
		}
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", dispatcher.ErrMessageNotFound, messageID)
	}
	ref := &dispatcher.Referenced{ID: m.ID, Content: m.Content}
	if m.Author != nil {
		ref.AuthorID = m.Author.ID
		ref.AuthorIsBot = m.Author.Bot
	}
	return ref, nil
}

func (p *Platform) Typing(ctx context.Context, channelID string) error {
	return p.api.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// DirectMessage opens (or reuses) a DM channel with userID and sends text to it.
func (p *Platform) DirectMessage(ctx context.Context, userID, text string) error {
	ch, err := p.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	return p.Send(ctx, ch.ID, text)
}

// Permissions returns the effective permission bits of userID in channelID.
func (p *Platform) Permissions(ctx context.Context, userID, channelID string) (int64, error) {
	return p.api.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
