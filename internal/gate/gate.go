package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lzyats/bot-relay/internal/conversations"
	"github.com/lzyats/bot-relay/pkg/bot"
)

const (
	ReasonHandoff    = "handoff"
	ReasonMultiParty = "multi_party"
)

type Options struct {
	DefaultBotID    string
	HandoffTarget   string
	MaxParticipants int
	OpTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.HandoffTarget == "" {
		o.HandoffTarget = "studio"
	}
	if o.MaxParticipants <= 0 {
		o.MaxParticipants = 1
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 3 * time.Second
	}
	return o
}

// Gate decides whether an inbound message should reach the bot.
type Gate struct {
	svc  conversations.Service
	log  *zap.Logger
	opts Options
}

func New(svc conversations.Service, log *zap.Logger, opts Options) *Gate {
	return &Gate{svc: svc, log: log, opts: opts.withDefaults()}
}

// LoadAttributes fetches and parses the conversation attributes. Only a fetch
// failure is returned; attributes that do not parse to an object are logged
// and read as empty.
func (g *Gate) LoadAttributes(ctx context.Context, ref bot.ConversationRef) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	raw, err := g.svc.FetchAttributes(ctx, ref.ServiceSid, ref.ConversationSid)
	cancel()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil || attrs == nil {
		g.log.Warn("invalid attribute structure",
			zap.String("conversation", ref.ConversationSid), zap.Error(err))
		return map[string]any{}, nil
	}
	return attrs, nil
}

// ReadAttributes is LoadAttributes with fetch failures logged and read as empty.
func (g *Gate) ReadAttributes(ctx context.Context, ref bot.ConversationRef) map[string]any {
	attrs, err := g.LoadAttributes(ctx, ref)
	if err != nil {
		g.log.Warn("fetch conversation attributes failed",
			zap.String("conversation", ref.ConversationSid), zap.Error(err))
		return map[string]any{}
	}
	return attrs
}

// ResolveBotID picks the target bot: the conversation's botId attribute
// (message-added events only), then the event's botId, then the configured default.
func (g *Gate) ResolveBotID(ctx context.Context, ev bot.Event) (string, error) {
	if ev.EventType == bot.EventMessageAdded {
		attrs := g.ReadAttributes(ctx, ev.Ref())
		if id, ok := attrs[bot.BotIDAttribute].(string); ok && id != "" {
			return id, nil
		}
	}
	if ev.BotID != "" {
		return ev.BotID, nil
	}
	if g.opts.DefaultBotID != "" {
		return g.opts.DefaultBotID, nil
	}
	return "", bot.ErrMissingBotID
}

// Snapshot gathers the conversation state needed by ShouldForward.
// Participants are not listed once a hand-off webhook is found.
func (g *Gate) Snapshot(ctx context.Context, ev bot.Event) (bot.Snapshot, error) {
	ref := ev.Ref()
	s := bot.Snapshot{AuthorIdentity: bot.DeriveIdentity(ev.Author)}

	wctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	hooks, err := g.svc.ListWebhooks(wctx, ref.ServiceSid, ref.ConversationSid)
	cancel()
	if err != nil {
		return s, fmt.Errorf("list webhooks: %w", err)
	}
	for _, h := range hooks {
		if h.Target == g.opts.HandoffTarget {
			s.HasHandoffWebhook = true
			return s, nil
		}
	}

	pctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	parts, err := g.svc.ListParticipants(pctx, ref.ServiceSid, ref.ConversationSid)
	cancel()
	if err != nil {
		return s, fmt.Errorf("list participants: %w", err)
	}
	s.ParticipantCount = len(parts)
	return s, nil
}

// ShouldForward returns false with a reason when a human or workflow has taken
// over the conversation, or when it is not a one-to-one bot conversation.
func (g *Gate) ShouldForward(s bot.Snapshot) (bool, string) {
	if s.HasHandoffWebhook {
		return false, ReasonHandoff
	}
	if s.ParticipantCount > g.opts.MaxParticipants {
		return false, ReasonMultiParty
	}
	return true, ""
}

// MarkTyping merges assistantIsTyping=true into current and persists it.
// Last writer wins; concurrent updates to the same conversation may be lost.
func (g *Gate) MarkTyping(ctx context.Context, ref bot.ConversationRef, current map[string]any) error {
	return g.setTyping(ctx, ref, current, true)
}

// ClearTyping merges assistantIsTyping=false into current and persists it.
func (g *Gate) ClearTyping(ctx context.Context, ref bot.ConversationRef, current map[string]any) error {
	return g.setTyping(ctx, ref, current, false)
}

func (g *Gate) setTyping(ctx context.Context, ref bot.ConversationRef, current map[string]any, typing bool) error {
	merged := make(map[string]any, len(current)+1)
	for k, v := range current {
		merged[k] = v
	}
	merged[bot.TypingAttribute] = typing
	b, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	defer cancel()
	return g.svc.UpdateAttributes(ctx, ref.ServiceSid, ref.ConversationSid, string(b))
}
