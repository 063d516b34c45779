package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-chatter/internal/allowlist"
	"discord-chatter/internal/analytics"
	"discord-chatter/internal/dispatcher"
	"discord-chatter/internal/history"
)

const (
	maxPrefixLen = 5

	defaultGreetingPrompt = "Write a short, friendly good-morning greeting for a Discord community channel. One or two sentences, no hashtags."
	quotePrompt           = "Share one short inspirational quote and its author. Reply with the quote only."
)

func definePrompt(word string) string {
	return fmt.Sprintf("Define the word %q. Give a concise definition and one example sentence.", word)
}

// handleCommand runs a prefix command. Unknown commands are ignored.
func (b *Bot) handleCommand(ctx context.Context, in dispatcher.Inbound, rest string) {
	name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)
	log := b.logger.With(zap.String("command", name), zap.String("user_id", in.AuthorID), zap.String("channel_id", in.ChannelID))

	switch name {
	case "help":
		b.reply(ctx, in.ChannelID, b.helpText())
	case "ping":
		b.reply(ctx, in.ChannelID, fmt.Sprintf("🏓 Pong! Gateway latency: %dms", b.latency().Milliseconds()))
	case "ask":
		if args == "" {
			b.reply(ctx, in.ChannelID, "Usage: `"+b.chat.Prefix()+"ask <question>`")
			return
		}
		b.ask(ctx, in.ChannelID, args, log)
	case "define":
		if args == "" {
			b.reply(ctx, in.ChannelID, "Usage: `"+b.chat.Prefix()+"define <word>`")
			return
		}
		b.ask(ctx, in.ChannelID, definePrompt(args), log)
	case "quote":
		b.ask(ctx, in.ChannelID, quotePrompt, log)
	case "info":
		b.reply(ctx, in.ChannelID, b.infoText())
	case "stats":
		b.reply(ctx, in.ChannelID, b.statsText())
	case "reset":
		b.chat.Reset(b.chat.ConversationScope(in))
		b.reply(ctx, in.ChannelID, "🧹 Conversation history cleared.")
	case "setchannel":
		if !b.requireGuildAdmin(ctx, in, log) {
			return
		}
		err := b.allowlist.Enable(in.GuildID, in.ChannelID)
		if err != nil && !errors.Is(err, allowlist.ErrPersist) {
			log.Error("enable chat channel", zap.Error(err))
			b.reply(ctx, in.ChannelID, "Sorry, I couldn't update the chat channel.")
			return
		}
		msg := fmt.Sprintf("✅ <#%s> is now the chat channel for this server. I'll reply to every message here.", in.ChannelID)
		if err != nil {
			msg += "\n⚠️ The setting could not be saved and will be lost on restart."
		}
		b.reply(ctx, in.ChannelID, msg)
	case "unsetchannel":
		if !b.requireGuildAdmin(ctx, in, log) {
			return
		}
		if _, ok := b.allowlist.Channel(in.GuildID); !ok {
			b.reply(ctx, in.ChannelID, "No chat channel is set for this server.")
			return
		}
		err := b.allowlist.Disable(in.GuildID)
		if err != nil && !errors.Is(err, allowlist.ErrPersist) {
			log.Error("disable chat channel", zap.Error(err))
			b.reply(ctx, in.ChannelID, "Sorry, I couldn't update the chat channel.")
			return
		}
		msg := "✅ Chat channel removed. Mention me to talk."
		if err != nil {
			msg += "\n⚠️ The setting could not be saved and will be lost on restart."
		}
		b.reply(ctx, in.ChannelID, msg)
	case "setprefix":
		if !b.requireGuildAdmin(ctx, in, log) {
			return
		}
		if err := validatePrefix(args); err != nil {
			b.reply(ctx, in.ChannelID, "❌ "+err.Error())
			return
		}
		old := b.chat.Prefix()
		b.chat.SetPrefix(args)
		log.Info("command prefix changed", zap.String("from", old), zap.String("to", args))
		b.reply(ctx, in.ChannelID, fmt.Sprintf("✅ Command prefix changed from `%s` to `%s`", old, args))
	case "report":
		if b.adminUserID == "" || in.AuthorID != b.adminUserID {
			b.reply(ctx, in.ChannelID, "❌ This command is only available to the bot admin.")
			return
		}
		summary, err := b.DailyReport(time.Now().UTC())
		if err != nil {
			log.Error("report generation failed", zap.Error(err))
			b.reply(ctx, in.ChannelID, "❌ Report generation failed.")
			return
		}
		b.reply(ctx, in.ChannelID, summary)
	default:
		log.Debug("unknown command")
	}
}

func (b *Bot) ask(ctx context.Context, channelID, prompt string, log *zap.Logger) {
	if err := b.chat.Ask(ctx, channelID, prompt); err != nil {
		log.Warn("one-shot prompt failed", zap.Error(err))
	}
}

func validatePrefix(p string) error {
	switch {
	case p == "":
		return errors.New("usage: setprefix <prefix>")
	case utf8.RuneCountInString(p) > maxPrefixLen:
		return fmt.Errorf("prefix must be at most %d characters", maxPrefixLen)
	case strings.IndexFunc(p, unicode.IsSpace) >= 0:
		return errors.New("prefix must not contain spaces")
	}
	return nil
}

// requireGuildAdmin replies with the reason and returns false unless the
// author may manage the bot in this guild.
func (b *Bot) requireGuildAdmin(ctx context.Context, in dispatcher.Inbound, log *zap.Logger) bool {
	if in.DM || in.GuildID == "" {
		b.reply(ctx, in.ChannelID, "❌ This command only works in a server.")
		return false
	}
	if b.adminUserID != "" && in.AuthorID == b.adminUserID {
		return true
	}
	perms, err := b.out.Permissions(ctx, in.AuthorID, in.ChannelID)
	if err != nil {
		log.Warn("permission lookup failed", zap.Error(err))
	}
	if err != nil || perms&discordgo.PermissionAdministrator == 0 {
		b.reply(ctx, in.ChannelID, "❌ You need the Administrator permission to use this command.")
		return false
	}
	return true
}

func (b *Bot) helpText() string {
	p := b.chat.Prefix()
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	lines := [][2]string{
		{"help", "Show this message"},
		{"ask <question>", "Ask a one-off question"},
		{"define <word>", "Get a definition"},
		{"quote", "Get an inspirational quote"},
		{"reset", "Clear the conversation history here"},
		{"stats", "Show conversation statistics"},
		{"info", "Show bot information"},
		{"ping", "Check latency"},
		{"setchannel", "Make this the chat channel (admin)"},
		{"unsetchannel", "Remove the chat channel (admin)"},
		{"setprefix <prefix>", "Change the command prefix (admin)"},
	}
	for _, l := range lines {
		fmt.Fprintf(&sb, "`%s%s` %s\n", p, l[0], l[1])
	}
	sb.WriteString("\nIn the chat channel I answer every message. Elsewhere, mention me or send a DM.")
	return sb.String()
}

func (b *Bot) infoText() string {
	return fmt.Sprintf("**discord-chatter**\nUptime: %s\nPrefix: `%s`\nChat channels: %d\nGo: %s",
		time.Since(b.startedAt).Truncate(time.Second),
		b.chat.Prefix(),
		len(b.allowlist.Snapshot()),
		runtime.Version(),
	)
}

func (b *Bot) statsText() string {
	st := b.chat.Stats()
	var sb strings.Builder
	sb.WriteString("**Conversation stats**\n")
	fmt.Fprintf(&sb, "Active conversations: %d\n", st.Scopes)
	fmt.Fprintf(&sb, "Stored messages: %d\n", st.Messages)
	for _, k := range []history.Kind{history.KindChannel, history.KindUser, history.KindReply} {
		ks := st.ByKind[k]
		fmt.Fprintf(&sb, "- %s: %d conversations, %d messages\n", k, ks.Scopes, ks.Messages)
	}
	fmt.Fprintf(&sb, "History limit: %d messages (%d for reply threads)\n", st.Capacity, st.ReplyCapacity)
	fmt.Fprintf(&sb, "Chat channels: %d", len(b.allowlist.Snapshot()))
	return sb.String()
}

// SendGreetings posts a generated greeting to every chat channel. Failures
// are collected and do not stop the remaining channels.
func (b *Bot) SendGreetings(ctx context.Context) error {
	var errs []error
	for guild, channel := range b.allowlist.Snapshot() {
		if err := b.chat.Ask(ctx, channel, b.greetingPrompt); err != nil {
			errs = append(errs, fmt.Errorf("guild %s channel %s: %w", guild, channel, err))
		}
	}
	return errors.Join(errs...)
}

// DailyReport summarizes the recorded interactions of day.
func (b *Bot) DailyReport(day time.Time) (string, error) {
	events, err := b.recorder.LoadInteractions()
	if err != nil {
		return "", fmt.Errorf("load interactions: %w", err)
	}
	return analytics.AnalyzeDailyLogs(events, day).GenerateReportSummary(), nil
}

// SendDailyReport logs today's report and DMs it to the admin.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	day := time.Now().UTC()
	summary, err := b.DailyReport(day)
	if err != nil {
		return err
	}
	b.logger.Info("daily report", zap.String("date", day.Format("2006-01-02")), zap.String("summary", summary))
	if err := b.NotifyAdmin(ctx, summary); err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	return nil
}
