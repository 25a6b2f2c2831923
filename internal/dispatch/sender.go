package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lzyats/bot-relay/internal/breaker"
	"github.com/lzyats/bot-relay/internal/metrics"
	"github.com/lzyats/bot-relay/pkg/bot"
)

// DefaultURLTemplate is the assistants endpoint; {botId} is replaced per message.
const DefaultURLTemplate = "https://assistants.twilio.com/v1/Assistants/{botId}/Messages"

var ErrBreakerOpen = errors.New("dispatch: breaker open")

type Options struct {
	AccountSID  string
	AuthToken   string
	URLTemplate string
	Region      string
	Timeout     time.Duration
	Breaker     *breaker.Breaker // optional
}

// Sender posts envelopes to the bot endpoint. It never retries.
type Sender struct {
	Client      *http.Client
	accountSID  string
	authToken   string
	urlTemplate string
	region      string
	brk         *breaker.Breaker
}

func NewSender(opt Options) *Sender {
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.URLTemplate == "" {
		opt.URLTemplate = DefaultURLTemplate
	}
	return &Sender{
		Client:      &http.Client{Timeout: opt.Timeout},
		accountSID:  opt.AccountSID,
		authToken:   opt.AuthToken,
		urlTemplate: opt.URLTemplate,
		region:      opt.Region,
		brk:         opt.Breaker,
	}
}

// BotURL expands the endpoint template for botID. A region moves the default
// twilio.com host to its regional equivalent.
func BotURL(template, region, botID string) string {
	u := strings.ReplaceAll(template, "{botId}", botID)
	region = strings.ToLower(strings.TrimSpace(region))
	if region != "" && region != "us1" {
		u = strings.Replace(u, "://assistants.twilio.com", "://assistants."+region+".twilio.com", 1)
	}
	return u
}

// Ready reports a configuration error when the dispatch credentials are missing.
func (s *Sender) Ready() error {
	if s.accountSID == "" || s.authToken == "" {
		return fmt.Errorf("%w: account sid and auth token are required", bot.ErrConfiguration)
	}
	return nil
}

// Send posts env as JSON with basic credentials. A non-2xx answer is a
// *bot.DispatchError carrying the response body.
func (s *Sender) Send(ctx context.Context, botID string, env bot.Envelope) error {
	if err := s.Ready(); err != nil {
		return err
	}
	if s.brk != nil && !s.brk.Allow(botID) {
		metrics.BreakerDrop.Inc()
		return ErrBreakerOpen
	}

	err := s.post(ctx, BotURL(s.urlTemplate, s.region, botID), env)
	if s.brk != nil {
		if err == nil {
			s.brk.Success(botID)
		} else if s.brk.Failure(botID) {
			metrics.BreakerOpen.Inc()
		}
	}
	return err
}

func (s *Sender) post(ctx context.Context, url string, env bot.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &bot.DispatchError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
