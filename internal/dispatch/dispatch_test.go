package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lzyats/bot-relay/internal/breaker"
	"github.com/lzyats/bot-relay/pkg/bot"
)

func TestBuildEnvelope(t *testing.T) {
	ev := bot.Event{
		Body:            "hi",
		ConversationSid: "CHx",
		ChatServiceSid:  "ISx",
		Author:          "USx",
	}
	env := BuildEnvelope(ev, "tok.en+/=", "relay.example.com")
	if env.Body != "hi" || env.Identity != "user_id:USx" || env.SessionID != "conversations__ISx/CHx" {
		t.Fatalf("envelope = %+v", env)
	}

	u, err := url.Parse(env.Webhook)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "https" || u.Host != "relay.example.com" || u.Path != CallbackPath {
		t.Fatalf("webhook = %s", env.Webhook)
	}
	if got := u.Query().Get("_token"); got != "tok.en+/=" {
		t.Fatalf("_token = %q", got)
	}
	if u.Query().Has("_assistantIdentity") {
		t.Fatal("_assistantIdentity set without an assistant identity")
	}

	ev.AssistantIdentity = "Helper Bot"
	env = BuildEnvelope(ev, "tok", "relay.example.com")
	want := "https://relay.example.com/channels/conversations/response?_token=tok&_assistantIdentity=Helper+Bot"
	if env.Webhook != want {
		t.Fatalf("webhook = %s, want %s", env.Webhook, want)
	}
}

func TestBotURL(t *testing.T) {
	if got := BotURL(DefaultURLTemplate, "", "asst_1"); got != "https://assistants.twilio.com/v1/Assistants/asst_1/Messages" {
		t.Fatalf("default = %s", got)
	}
	if got := BotURL(DefaultURLTemplate, "IE1", "asst_1"); got != "https://assistants.ie1.twilio.com/v1/Assistants/asst_1/Messages" {
		t.Fatalf("regional = %s", got)
	}
	if got := BotURL("http://bot.local/{botId}", "ie1", "b"); got != "http://bot.local/b" {
		t.Fatalf("custom = %s", got)
	}
}

func TestSend(t *testing.T) {
	var got bot.Envelope
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSender(Options{AccountSID: "AC1", AuthToken: "secret", URLTemplate: srv.URL + "/assistants/{botId}/messages"})
	env := bot.Envelope{Body: "hi", Identity: "user_id:US1", SessionID: "conversations__IS1/CH1", Webhook: "https://x/cb"}
	if err := s.Send(context.Background(), "asst_1", env); err != nil {
		t.Fatal(err)
	}
	if got != env {
		t.Fatalf("posted %+v", got)
	}
	if path != "/assistants/asst_1/messages" {
		t.Fatalf("path = %s", path)
	}
	if want := "Basic " + base64.StdEncoding.EncodeToString([]byte("AC1:secret")); auth != want {
		t.Fatalf("Authorization = %q, want %q", auth, want)
	}
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "assistant not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSender(Options{AccountSID: "AC1", AuthToken: "secret", URLTemplate: srv.URL + "/{botId}"})
	err := s.Send(context.Background(), "asst_1", bot.Envelope{})
	var de *bot.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DispatchError", err)
	}
	if de.StatusCode != http.StatusNotFound || de.Body != "assistant not found\n" {
		t.Fatalf("dispatch error = %+v", de)
	}
}

func TestSendRequiresCredentials(t *testing.T) {
	err := NewSender(Options{AuthToken: "secret"}).Send(context.Background(), "asst_1", bot.Envelope{})
	if !errors.Is(err, bot.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestSenderReady(t *testing.T) {
	cases := []struct {
		name string
		opt  Options
		ok   bool
	}{
		{"complete", Options{AccountSID: "AC1", AuthToken: "secret"}, true},
		{"no account", Options{AuthToken: "secret"}, false},
		{"no token", Options{AccountSID: "AC1"}, false},
	}
	for _, tc := range cases {
		err := NewSender(tc.opt).Ready()
		if (err == nil) != tc.ok || (err != nil && !errors.Is(err, bot.ErrConfiguration)) {
			t.Errorf("%s: Ready = %v", tc.name, err)
		}
	}
}

func TestSendBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	brk := breaker.New(breaker.Options{Threshold: 2, Window: time.Minute, OpenFor: time.Minute})
	s := NewSender(Options{AccountSID: "AC1", AuthToken: "secret", URLTemplate: srv.URL + "/{botId}", Breaker: brk})
	for i := 0; i < 2; i++ {
		var de *bot.DispatchError
		if err := s.Send(context.Background(), "asst_1", bot.Envelope{}); !errors.As(err, &de) {
			t.Fatalf("send %d: err = %v", i, err)
		}
	}
	if err := s.Send(context.Background(), "asst_1", bot.Envelope{}); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if calls != 2 {
		t.Fatalf("endpoint called %d times, want 2", calls)
	}
}
