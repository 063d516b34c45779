// Package discord connects the dispatcher to a Discord gateway session and
// routes prefix commands.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-chatter/internal/allowlist"
	"discord-chatter/internal/chunker"
	"discord-chatter/internal/dispatcher"
	"discord-chatter/internal/history"
	"discord-chatter/internal/storage"
)

const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// NewSession creates a bot session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// chatService is what the bot needs from the dispatcher.
type chatService interface {
	Handle(ctx context.Context, in dispatcher.Inbound) dispatcher.Outcome
	Ask(ctx context.Context, channelID, prompt string) error
	Prefix() string
	SetPrefix(p string)
	BotID() string
	SetBotID(id string)
	ConversationScope(in dispatcher.Inbound) history.Scope
	Reset(scope history.Scope)
	Stats() history.Stats
}

// messenger is the outbound side of the platform used by commands and jobs.
type messenger interface {
	Send(ctx context.Context, channelID, text string) error
	DirectMessage(ctx context.Context, userID, text string) error
	Permissions(ctx context.Context, userID, channelID string) (int64, error)
}

type Options struct {
	AdminUserID string
	Recorder    storage.Recorder
	Logger      *zap.Logger
	// GreetingPrompt is sent through the completion client for each daily greeting.
	GreetingPrompt string
}

type Bot struct {
	session   *discordgo.Session
	chat      chatService
	out       messenger
	allowlist *allowlist.Service
	recorder  storage.Recorder
	logger    *zap.Logger

	adminUserID    string
	greetingPrompt string
	startedAt      time.Time
	latency        func() time.Duration
}

// New wires the bot to session. Event handlers are registered immediately;
// nothing is received until Run opens the session.
func New(session *discordgo.Session, d *dispatcher.Dispatcher, platform *Platform, allow *allowlist.Service, opts Options) *Bot {
	b := newBot(d, platform, allow, opts)
	b.session = session
	b.latency = session.HeartbeatLatency
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b
}

func newBot(chat chatService, out messenger, allow *allowlist.Service, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = storage.Nop{}
	}
	prompt := opts.GreetingPrompt
	if prompt == "" {
		prompt = defaultGreetingPrompt
	}
	return &Bot{
		chat:           chat,
		out:            out,
		allowlist:      allow,
		recorder:       rec,
		logger:         logger,
		adminUserID:    opts.AdminUserID,
		greetingPrompt: prompt,
		startedAt:      time.Now(),
		latency:        func() time.Duration { return 0 },
	}
}

// Run opens the gateway connection and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	if u := b.session.State.User; u != nil {
		b.chat.SetBotID(u.ID)
		b.logger.Info("connected", zap.String("user", u.Username), zap.String("id", u.ID))
	}
	<-ctx.Done()
	b.logger.Info("closing Discord session")
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.chat.SetBotID(r.User.ID)
	if err := s.UpdateListeningStatus(b.chat.Prefix() + "help"); err != nil {
		b.logger.Warn("failed to set presence", zap.Error(err))
	}
	channels := b.allowlist.Snapshot()
	b.logger.Info("ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)),
		zap.Int("chat_channels", len(channels)),
	)
	for guild, channel := range channels {
		b.logger.Info("chat channel", zap.String("guild_id", guild), zap.String("channel_id", channel))
	}
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	b.handleMessage(context.Background(), toInbound(m.Message, b.chat.BotID()))
}

func (b *Bot) handleMessage(ctx context.Context, in dispatcher.Inbound) {
	if in.IsBot {
		return
	}
	if prefix := b.chat.Prefix(); strings.HasPrefix(in.Content, prefix) {
		b.handleCommand(ctx, in, strings.TrimPrefix(in.Content, prefix))
		return
	}
	b.chat.Handle(ctx, in)
}

// toInbound converts a gateway message. Messages without a guild id are DMs.
func toInbound(m *discordgo.Message, botID string) dispatcher.Inbound {
	in := dispatcher.Inbound{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		DM:        m.GuildID == "",
	}
	if m.Author != nil {
		in.AuthorID = m.Author.ID
		in.AuthorName = m.Author.Username
		in.IsBot = m.Author.Bot
	}
	if botID != "" {
		for _, u := range m.Mentions {
			if u != nil && u.ID == botID {
				in.MentionsBot = true
				break
			}
		}
	}
	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		if ref.ChannelID == "" || ref.ChannelID == m.ChannelID {
			in.ReplyTo = ref.MessageID
		}
	}
	return in
}

func (b *Bot) reply(ctx context.Context, channelID, text string) {
	for _, part := range chunker.Split(text, chunker.DefaultLimit) {
		if err := b.out.Send(ctx, channelID, part); err != nil {
			b.logger.Warn("failed to send command reply", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
	}
}

// NotifyAdmin sends text to the configured admin by DM. Without an admin it is a no-op.
func (b *Bot) NotifyAdmin(ctx context.Context, text string) error {
	if b.adminUserID == "" {
		return nil
	}
	for _, part := range chunker.Split(text, chunker.DefaultLimit) {
		if err := b.out.DirectMessage(ctx, b.adminUserID, part); err != nil {
			return err
		}
	}
	return nil
}
