package main

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/lzyats/bot-relay/internal/auth"
	"github.com/lzyats/bot-relay/internal/relay"
	"github.com/lzyats/bot-relay/pkg/bot"
)

const maxBodyBytes = 1 << 20

// incomingHandler receives the conversation webhook (form or JSON encoded).
// Anything short of a fatal error is acknowledged with an empty 200 so the
// sender does not retry.
func incomingHandler(h *relay.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		ev, err := decodeEvent(r)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if ev.ConversationSid == "" || ev.ChatServiceSid == "" {
			http.Error(w, "missing ConversationSid or ChatServiceSid", http.StatusBadRequest)
			return
		}

		res, err := h.Handle(r.Context(), ev)
		if err != nil {
			log.Error("incoming conversation failed",
				zap.String("trace_id", res.TraceID),
				zap.String("conversation", ev.ConversationSid),
				zap.Bool("missing_bot_id", errors.Is(err, bot.ErrMissingBotID)),
				zap.Error(err))
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEvent(r *http.Request) (bot.Event, error) {
	var ev bot.Event
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil && !errors.Is(err, io.EOF) {
			return ev, err
		}
		// query parameters configured on the webhook URL still apply
		q := r.URL.Query()
		fill(&ev.BotID, q.Get("botId"))
		fill(&ev.AssistantIdentity, q.Get("AssistantIdentity"))
		return ev, nil
	}
	if err := r.ParseForm(); err != nil {
		return ev, err
	}
	f := r.Form
	ev = bot.Event{
		EventType:         f.Get("EventType"),
		Body:              f.Get("Body"),
		ConversationSid:   f.Get("ConversationSid"),
		ChatServiceSid:    f.Get("ChatServiceSid"),
		Author:            f.Get("Author"),
		MessageSid:        f.Get("MessageSid"),
		AssistantIdentity: f.Get("AssistantIdentity"),
		BotID:             f.Get("botId"),
	}
	return ev, nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// callbackHandler runs behind auth.Guard and accepts the bot's reply.
func callbackHandler(h *relay.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var reply relay.Reply
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reply); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch err := h.Accept(r.Context(), auth.SubjectFrom(r.Context()), reply); {
		case errors.Is(err, relay.ErrBotMismatch):
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
}
