package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lzyats/bot-relay/internal/auth"
	"github.com/lzyats/bot-relay/internal/dedupe"
	"github.com/lzyats/bot-relay/internal/dispatch"
	"github.com/lzyats/bot-relay/internal/gate"
	"github.com/lzyats/bot-relay/internal/metrics"
	"github.com/lzyats/bot-relay/internal/publisher"
	"github.com/lzyats/bot-relay/pkg/bot"
	"github.com/lzyats/bot-relay/pkg/event"
)

const relayEventName = "bot_relay"

// Sender delivers an envelope to a bot. Ready is checked before the
// conversation is touched.
type Sender interface {
	Ready() error
	Send(ctx context.Context, botID string, env bot.Envelope) error
}

// IDGen is satisfied by *sonyflake.Sonyflake.
type IDGen interface {
	NextID() (uint64, error)
}

type Deps struct {
	Gate      *gate.Gate
	Codec     *auth.Codec
	Assembler dispatch.Assembler
	Sender    Sender
	Dedupe    dedupe.Deduper      // optional
	Publisher publisher.Publisher // optional
	IDs       IDGen               // optional
	Log       *zap.Logger

	PublishTimeout time.Duration
}

// Handler runs one inbound message through gating and dispatch.
// It holds no per-conversation state; every call is independent.
type Handler struct {
	gate       *gate.Gate
	codec      *auth.Codec
	asm        dispatch.Assembler
	sender     Sender
	dedupe     dedupe.Deduper
	pub        publisher.Publisher
	ids        IDGen
	log        *zap.Logger
	pubTimeout time.Duration
}

func New(d Deps) *Handler {
	if d.Publisher == nil {
		d.Publisher = publisher.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.PublishTimeout <= 0 {
		d.PublishTimeout = 2 * time.Second
	}
	return &Handler{
		gate:       d.Gate,
		codec:      d.Codec,
		asm:        d.Assembler,
		sender:     d.Sender,
		dedupe:     d.Dedupe,
		pub:        d.Publisher,
		ids:        d.IDs,
		log:        d.Log,
		pubTimeout: d.PublishTimeout,
	}
}

// Handle returns an error only for fatal outcomes (configuration, missing bot
// id, conversation service failures while gating). A rejected dispatch is
// logged and reported through Result with StatusDispatchFailed.
func (h *Handler) Handle(ctx context.Context, ev bot.Event) (bot.Result, error) {
	metrics.Received.Inc()
	res := bot.Result{TraceID: h.traceID()}
	log := h.log.With(
		zap.String("trace_id", res.TraceID),
		zap.String("conversation", ev.ConversationSid),
		zap.String("message", ev.MessageSid),
	)

	botID, err := h.gate.ResolveBotID(ctx, ev)
	if err != nil {
		return res, err
	}
	res.BotID = botID

	snap, err := h.gate.Snapshot(ctx, ev)
	if err != nil {
		return res, err
	}
	if ok, reason := h.gate.ShouldForward(snap); !ok {
		switch reason {
		case gate.ReasonHandoff:
			metrics.SkippedHandoff.Inc()
		case gate.ReasonMultiParty:
			metrics.SkippedMultiParty.Inc()
		}
		res.Status, res.Reason = bot.StatusSkipped, reason
		log.Info("message not forwarded", zap.String("reason", reason), zap.Int("participants", snap.ParticipantCount))
		h.publish(ctx, ev, res)
		return res, nil
	}

	if h.asm.Domain == "" {
		return res, fmt.Errorf("%w: domain name is required", bot.ErrConfiguration)
	}
	if err := h.sender.Ready(); err != nil {
		return res, err
	}
	token, err := h.codec.Mint(botID)
	if err != nil {
		return res, err
	}
	env := h.asm.Build(ev, token)

	if h.dedupe != nil && ev.MessageSid != "" {
		first, err := h.dedupe.Claim(ctx, ev.MessageSid)
		if err != nil {
			log.Warn("dedupe claim failed, processing anyway", zap.Error(err))
		} else if !first {
			metrics.Duplicates.Inc()
			res.Status = bot.StatusDuplicate
			h.publish(ctx, ev, res)
			return res, nil
		}
	}

	// A failed fetch leaves the attributes alone: writing the flag onto an
	// empty map would drop every other key.
	if attrs, err := h.gate.LoadAttributes(ctx, ev.Ref()); err != nil {
		metrics.TypingFail.Inc()
		log.Warn("typing flag skipped, attributes unavailable", zap.Error(err))
	} else if err := h.gate.MarkTyping(ctx, ev.Ref(), attrs); err != nil {
		metrics.TypingFail.Inc()
		log.Warn("mark typing failed", zap.Error(err))
	}

	if err := h.sender.Send(ctx, botID, env); err != nil {
		if errors.Is(err, bot.ErrConfiguration) {
			return res, err
		}
		metrics.DispatchFail.Inc()
		log.Error("send message to bot failed", zap.String("bot_id", botID), zap.Error(err))
		res.Status, res.Err = bot.StatusDispatchFailed, err
		h.publish(ctx, ev, res)
		return res, nil
	}

	metrics.Forwarded.Inc()
	log.Info("sent message to bot", zap.String("bot_id", botID))
	res.Status = bot.StatusForwarded
	h.publish(ctx, ev, res)
	return res, nil
}

// Reply is the payload the bot posts to the callback URL.
type Reply struct {
	Body      string `json:"body"`
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
	Identity  string `json:"identity,omitempty"`
}

var (
	ErrBadSession  = errors.New("relay: invalid session id")
	ErrBotMismatch = errors.New("relay: token bot does not own the conversation")
)

// Accept handles a reply whose callback token was already verified for botID.
// When the conversation names its bot in the botId attribute, botID must match
// it. The typing flag is then cleared (best-effort).
func (h *Handler) Accept(ctx context.Context, botID string, r Reply) error {
	ref, ok := bot.ParseSessionID(r.SessionID)
	if !ok {
		return ErrBadSession
	}
	log := h.log.With(zap.String("conversation", ref.ConversationSid), zap.String("bot_id", botID))

	attrs, err := h.gate.LoadAttributes(ctx, ref)
	if err != nil {
		metrics.TypingFail.Inc()
		log.Warn("typing flag not cleared, attributes unavailable", zap.Error(err))
		return nil
	}
	if owner, _ := attrs[bot.BotIDAttribute].(string); owner != "" && owner != botID {
		log.Warn("bot reply rejected", zap.String("owner", owner))
		return ErrBotMismatch
	}
	if err := h.gate.ClearTyping(ctx, ref, attrs); err != nil {
		metrics.TypingFail.Inc()
		log.Warn("clear typing failed", zap.Error(err))
	}
	log.Info("bot reply accepted",
		zap.String("status", r.Status),
		zap.Int("body_len", len(r.Body)),
	)
	return nil
}

func (h *Handler) traceID() string {
	if h.ids == nil {
		return ""
	}
	id, err := h.ids.NextID()
	if err != nil {
		return ""
	}
	return strconv.FormatUint(id, 10)
}

func (h *Handler) publish(ctx context.Context, ev bot.Event, res bot.Result) {
	evt := &event.RelayEvent{
		Event:           relayEventName,
		TraceID:         res.TraceID,
		TS:              time.Now().Unix(),
		ServiceSid:      ev.ChatServiceSid,
		ConversationSid: ev.ConversationSid,
		MessageSid:      ev.MessageSid,
		BotID:           res.BotID,
		Status:          string(res.Status),
		Reason:          res.Reason,
	}
	if res.Err != nil {
		evt.Error = res.Err.Error()
	}
	pctx, cancel := context.WithTimeout(ctx, h.pubTimeout)
	defer cancel()
	if err := h.pub.Publish(pctx, evt); err != nil {
		h.log.Warn("publish relay event failed", zap.String("trace_id", res.TraceID), zap.Error(err))
	}
}
