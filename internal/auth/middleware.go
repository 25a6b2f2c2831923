package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lzyats/bot-relay/internal/metrics"
	"github.com/lzyats/bot-relay/pkg/bot"
)

// QueryKey carries the callback token on the webhook URL handed to the bot.
const QueryKey = "_token"

type subjectKey struct{}

// SubjectFrom returns the bot id of the callback token Guard accepted.
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// ExtractToken gets the token from the query parameter, falling back to a
// Bearer Authorization header.
func ExtractToken(r *http.Request, queryKey string) string {
	if queryKey != "" {
		if v := strings.TrimSpace(r.URL.Query().Get(queryKey)); v != "" {
			return v
		}
	}
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(v, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	return ""
}

// Guard only lets requests carrying a valid callback token reach next, with
// the token's bot id available through SubjectFrom.
func Guard(codec *Codec, log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok, err := codec.Subject(ExtractToken(r, QueryKey))
		switch {
		case errors.Is(err, bot.ErrConfiguration):
			log.Error("callback verification misconfigured", zap.Error(err))
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		case err != nil:
			metrics.CallbackRejected.Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		case !ok:
			metrics.CallbackRejected.Inc()
			log.Warn("callback token rejected", zap.String("path", r.URL.Path))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		metrics.CallbackAccepted.Inc()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	})
}
