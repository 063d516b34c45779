// Package dispatcher turns eligible chat messages into completion requests and
// delivers the replies back in platform-sized pieces.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"discord-chatter/internal/allowlist"
	"discord-chatter/internal/chunker"
	"discord-chatter/internal/history"
	"discord-chatter/internal/llm"
	"discord-chatter/internal/logging"
	"discord-chatter/internal/storage"
)

const (
	CompletionApology = "Sorry, I couldn't generate a response right now. Please try again."
	ErrorApology      = "Sorry, I encountered an error while processing your message."

	DefaultPrefix  = "!"
	DefaultTimeout = 60 * time.Second

	oneShotScope = "oneshot"
)

// Reactions are the emoji used for random auto reactions.
var Reactions = []string{"👍", "😊", "🤔", "💡", "❤️", "🎉"}

type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeOK               Outcome = storage.OutcomeOK
	OutcomeCompletionFailed Outcome = storage.OutcomeCompletionFailed
	OutcomeDeliveryFailed   Outcome = storage.OutcomeDeliveryFailed
	OutcomeError            Outcome = "error"
)

type Options struct {
	Store     *history.Store
	Allowlist *allowlist.Service
	Client    llm.Client
	Platform  Platform
	Policy    chunker.Policy
	Recorder  storage.Recorder
	Logger    *zap.Logger

	BotID               string
	Prefix              string
	ReactionProbability float64
	Timeout             time.Duration

	// RandFloat and RandIntn default to math/rand/v2.
	RandFloat func() float64
	RandIntn  func(n int) int
}

type Dispatcher struct {
	store     *history.Store
	allowlist *allowlist.Service
	client    llm.Client
	platform  Platform
	policy    chunker.Policy
	recorder  storage.Recorder
	logger    *zap.Logger

	botID     atomic.Value // string
	prefix    atomic.Value // string
	reactProb float64
	timeout   time.Duration
	randFloat func() float64
	randIntn  func(int) int
	now       func() time.Time
}

func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("dispatcher: store is required")
	case opts.Allowlist == nil:
		return nil, errors.New("dispatcher: allowlist is required")
	case opts.Client == nil:
		return nil, errors.New("dispatcher: completion client is required")
	case opts.Platform == nil:
		return nil, errors.New("dispatcher: platform is required")
	}
	if opts.ReactionProbability < 0 || opts.ReactionProbability > 1 {
		return nil, fmt.Errorf("dispatcher: reaction probability %v out of [0,1]", opts.ReactionProbability)
	}
	d := &Dispatcher{
		store:     opts.Store,
		allowlist: opts.Allowlist,
		client:    opts.Client,
		platform:  opts.Platform,
		policy:    opts.Policy,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		reactProb: opts.ReactionProbability,
		timeout:   opts.Timeout,
		randFloat: opts.RandFloat,
		randIntn:  opts.RandIntn,
		now:       time.Now,
	}
	if d.policy.Limit < 1 {
		d.policy = chunker.DefaultPolicy()
	}
	if d.recorder == nil {
		d.recorder = storage.Nop{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.randFloat == nil {
		d.randFloat = rand.Float64
	}
	if d.randIntn == nil {
		d.randIntn = rand.IntN
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	d.prefix.Store(prefix)
	d.botID.Store(opts.BotID)
	return d, nil
}

func (d *Dispatcher) Prefix() string { return d.prefix.Load().(string) }

func (d *Dispatcher) SetPrefix(p string) { d.prefix.Store(p) }

// SetBotID sets the bot's own user id once the session knows it.
func (d *Dispatcher) SetBotID(id string) { d.botID.Store(id) }

func (d *Dispatcher) BotID() string { return d.botID.Load().(string) }

// Eligible reports whether in should be answered as chat. Command-prefixed
// text and messages from bots never are. Direct messages always are; guild
// messages only in the guild's allowlisted channel or when the bot is mentioned.
func (d *Dispatcher) Eligible(in Inbound) bool {
	if botID := d.BotID(); in.IsBot || (botID != "" && in.AuthorID == botID) {
		return false
	}
	if strings.HasPrefix(in.Content, d.Prefix()) {
		return false
	}
	if in.DM {
		return true
	}
	return in.MentionsBot || d.allowlist.IsAllowed(in.GuildID, in.ChannelID)
}

// Handle runs one message through the full request cycle. The user turn is
// committed to history only after a successful completion; the assistant turn
// only after a successful delivery.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) (out Outcome) {
	if !d.Eligible(in) {
		return OutcomeIgnored
	}
	content := d.stripMention(in.Content)
	if content == "" {
		return OutcomeIgnored
	}

	reqID := uuid.NewString()
	log := d.logger.With(
		zap.String("request_id", reqID),
		zap.String("channel_id", in.ChannelID),
		zap.String("user_id", in.AuthorID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling message", zap.Any("panic", r), zap.Stack("stack"))
			d.sendBestEffort(ctx, in.ChannelID, ErrorApology, log)
			out = OutcomeError
		}
	}()

	d.maybeReact(ctx, in, log)
	if err := d.platform.Typing(ctx, in.ChannelID); err != nil {
		log.Debug("typing indicator failed", zap.Error(err))
	}

	scope, seed := d.resolveScope(ctx, in, log)
	userMsg := history.Message{Role: llm.RoleUser, Content: content, OriginID: in.AuthorID}
	msgs := d.store.Preview(scope, userMsg, true)
	if seed != nil {
		msgs = append([]llm.Message{{Role: seed.Role, Content: seed.Content}}, msgs...)
	}
	log.Debug("context built",
		zap.String("scope", scope.String()),
		zap.Int("messages", len(msgs)),
		zap.String("text", logging.Truncate(content, 80)),
	)

	ev := storage.Event{
		Timestamp:   d.now().UTC(),
		RequestID:   reqID,
		Scope:       scope.String(),
		GuildID:     in.GuildID,
		ChannelID:   in.ChannelID,
		UserID:      in.AuthorID,
		UserMessage: content,
	}

	resp, err := d.complete(ctx, msgs)
	if err != nil {
		log.Warn("completion failed", zap.Error(err))
		d.sendBestEffort(ctx, in.ChannelID, CompletionApology, log)
		ev.Outcome = storage.OutcomeCompletionFailed
		d.record(ev, log)
		return OutcomeCompletionFailed
	}
	if seed != nil {
		d.store.Append(scope, *seed)
	}
	d.store.Append(scope, userMsg)
	fillResponse(&ev, resp)

	delivery := d.policy.Plan(resp.Content)
	fillDelivery(&ev, delivery)
	if err := d.deliver(ctx, in.ChannelID, delivery); err != nil {
		log.Error("delivery failed", zap.Error(err))
		d.sendBestEffort(ctx, in.ChannelID, ErrorApology, log)
		ev.Outcome = storage.OutcomeDeliveryFailed
		d.record(ev, log)
		return OutcomeDeliveryFailed
	}

	d.store.Append(scope, history.Message{Role: llm.RoleAssistant, Content: resp.Content, OriginID: d.BotID()})
	ev.Outcome = storage.OutcomeOK
	d.record(ev, log)
	log.Info("responded",
		zap.String("scope", scope.String()),
		zap.String("delivery", ev.Delivery),
		zap.Int("fragments", ev.Fragments),
		zap.Int("total_tokens", resp.TotalTokens),
	)
	return OutcomeOK
}

// Ask answers a single prompt in channelID without reading or writing any
// conversation history.
func (d *Dispatcher) Ask(ctx context.Context, channelID, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return errors.New("empty prompt")
	}
	reqID := uuid.NewString()
	log := d.logger.With(zap.String("request_id", reqID), zap.String("channel_id", channelID))
	ev := storage.Event{
		Timestamp:   d.now().UTC(),
		RequestID:   reqID,
		Scope:       oneShotScope,
		ChannelID:   channelID,
		UserMessage: prompt,
	}

	if err := d.platform.Typing(ctx, channelID); err != nil {
		log.Debug("typing indicator failed", zap.Error(err))
	}
	resp, err := d.complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		d.sendBestEffort(ctx, channelID, CompletionApology, log)
		ev.Outcome = storage.OutcomeCompletionFailed
		d.record(ev, log)
		return fmt.Errorf("completion: %w", err)
	}
	fillResponse(&ev, resp)
	delivery := d.policy.Plan(resp.Content)
	fillDelivery(&ev, delivery)
	if err := d.deliver(ctx, channelID, delivery); err != nil {
		d.sendBestEffort(ctx, channelID, ErrorApology, log)
		ev.Outcome = storage.OutcomeDeliveryFailed
		d.record(ev, log)
		return fmt.Errorf("deliver: %w", err)
	}
	ev.Outcome = storage.OutcomeOK
	d.record(ev, log)
	return nil
}

// ConversationScope is the scope a plain (non-reply) message from in belongs to.
func (d *Dispatcher) ConversationScope(in Inbound) history.Scope {
	if in.DM {
		return history.UserScope(in.AuthorID)
	}
	return history.ChannelScope(in.ChannelID)
}

func (d *Dispatcher) Reset(scope history.Scope) { d.store.Clear(scope) }

func (d *Dispatcher) Stats() history.Stats { return d.store.Stats() }

// resolveScope picks the history a message belongs to. A reply to one of the
// bot's messages uses the per-user reply scope; when that scope is still empty
// the referenced bot message is returned as a seed to commit with the user turn.
func (d *Dispatcher) resolveScope(ctx context.Context, in Inbound, log *zap.Logger) (history.Scope, *history.Message) {
	botID := d.BotID()
	if in.ReplyTo != "" && botID != "" {
		ref, err := d.platform.FetchMessage(ctx, in.ChannelID, in.ReplyTo)
		switch {
		case errors.Is(err, ErrMessageNotFound):
			log.Debug("referenced message not found", zap.String("message_id", in.ReplyTo))
		case err != nil:
			log.Warn("fetch referenced message", zap.String("message_id", in.ReplyTo), zap.Error(err))
		case ref != nil && ref.AuthorID == botID:
			scope := history.ReplyScope(in.ChannelID, in.AuthorID)
			if d.store.Len(scope) == 0 && strings.TrimSpace(ref.Content) != "" {
				return scope, &history.Message{Role: llm.RoleAssistant, Content: ref.Content, OriginID: botID}
			}
			return scope, nil
		}
	}
	return d.ConversationScope(in), nil
}

func (d *Dispatcher) complete(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := d.client.Generate(cctx, msgs)
	if err != nil {
		return llm.Response{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return llm.Response{}, llm.ErrEmptyCompletion
	}
	return resp, nil
}

// deliver sends the planned delivery in order, stopping at the first failure.
func (d *Dispatcher) deliver(ctx context.Context, channelID string, delivery chunker.Delivery) error {
	if delivery.IsFile() {
		if err := d.platform.SendFile(ctx, channelID, delivery.File.Name, delivery.File.Content); err != nil {
			return fmt.Errorf("send file: %w", err)
		}
		return nil
	}
	for i, frag := range delivery.Fragments {
		if err := d.platform.Send(ctx, channelID, frag); err != nil {
			return fmt.Errorf("send fragment %d/%d: %w", i+1, len(delivery.Fragments), err)
		}
	}
	return nil
}

func (d *Dispatcher) maybeReact(ctx context.Context, in Inbound, log *zap.Logger) {
	if d.reactProb <= 0 || in.ID == "" || d.randFloat() >= d.reactProb {
		return
	}
	emoji := Reactions[d.randIntn(len(Reactions))]
	if err := d.platform.React(ctx, in.ChannelID, in.ID, emoji); err != nil {
		log.Debug("auto reaction failed", zap.Error(err))
	}
}

func (d *Dispatcher) sendBestEffort(ctx context.Context, channelID, text string, log *zap.Logger) {
	if err := d.platform.Send(ctx, channelID, text); err != nil {
		log.Error("failed to send apology", zap.Error(err))
	}
}

func (d *Dispatcher) record(ev storage.Event, log *zap.Logger) {
	if err := d.recorder.AppendInteraction(ev); err != nil {
		log.Warn("failed to record interaction", zap.Error(err))
	}
}

func (d *Dispatcher) stripMention(content string) string {
	if botID := d.BotID(); botID != "" {
		content = strings.ReplaceAll(content, "<@"+botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	}
	return strings.TrimSpace(content)
}

func fillResponse(ev *storage.Event, resp llm.Response) {
	ev.AssistantResponse = resp.Content
	ev.Model = resp.Model
	ev.PromptTokens = resp.PromptTokens
	ev.CompletionTokens = resp.CompletionTokens
	ev.TotalTokens = resp.TotalTokens
}

func fillDelivery(ev *storage.Event, delivery chunker.Delivery) {
	if delivery.IsFile() {
		ev.Delivery = storage.DeliveryFile
		return
	}
	ev.Delivery = storage.DeliveryMessages
	ev.Fragments = len(delivery.Fragments)
}
