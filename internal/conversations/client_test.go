package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	twclient "github.com/twilio/twilio-go/client"
)

type apiRecorder struct {
	mu      sync.Mutex
	updated string
	hosts   []string
}

func newTestServer(t *testing.T) (*httptest.Server, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.hosts = append(rec.hosts, r.Header.Get("X-Forwarded-Host"))
		rec.mu.Unlock()

		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 20003, "message": "Authenticate", "status": 401})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		const conv = "/v1/Services/IS1/Conversations/CH1"
		switch {
		case r.URL.Path == conv+"/Webhooks" && r.URL.Query().Get("Page") == "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"webhooks": []map[string]any{{"sid": "WH1", "target": "webhook"}},
				"meta": map[string]any{
					"key":           "webhooks",
					"next_page_url": "https://conversations.twilio.com" + conv + "/Webhooks?PageSize=50&Page=1",
				},
			})
		case r.URL.Path == conv+"/Webhooks":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"webhooks": []map[string]any{{"sid": "WH2", "target": "studio"}},
				"meta":     map[string]any{"key": "webhooks", "next_page_url": nil},
			})
		case r.URL.Path == conv+"/Participants":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"participants": []map[string]any{{"sid": "MB1", "identity": "user_id:US1"}},
				"meta":         map[string]any{"key": "participants", "next_page_url": nil},
			})
		case r.URL.Path == conv && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"sid": "CH1", "attributes": `{"botId":"asst_1"}`})
		case r.URL.Path == conv && r.Method == http.MethodPost:
			_ = r.ParseForm()
			rec.mu.Lock()
			rec.updated = r.PostForm.Get("Attributes")
			rec.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"sid": "CH1", "attributes": r.PostForm.Get("Attributes")})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 20404, "message": "not found", "status": 404})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClient(t *testing.T) {
	srv, rec := newTestServer(t)
	c := NewClient(Options{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL})
	ctx := context.Background()

	hooks, err := c.ListWebhooks(ctx, "IS1", "CH1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hooks) != 2 || hooks[0].Sid != "WH1" || hooks[1].Target != "studio" {
		t.Fatalf("webhooks = %+v", hooks)
	}

	parts, err := c.ListParticipants(ctx, "IS1", "CH1")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || parts[0].Identity != "user_id:US1" {
		t.Fatalf("participants = %+v", parts)
	}

	attrs, err := c.FetchAttributes(ctx, "IS1", "CH1")
	if err != nil {
		t.Fatal(err)
	}
	if attrs != `{"botId":"asst_1"}` {
		t.Fatalf("attributes = %q", attrs)
	}

	if err := c.UpdateAttributes(ctx, "IS1", "CH1", `{"assistantIsTyping":true}`); err != nil {
		t.Fatal(err)
	}
	if rec.updated != `{"assistantIsTyping":true}` {
		t.Fatalf("updated = %q", rec.updated)
	}
	if rec.hosts[0] != "conversations.twilio.com" {
		t.Fatalf("default host = %q", rec.hosts[0])
	}
}

func TestClientRegion(t *testing.T) {
	srv, rec := newTestServer(t)
	c := NewClient(Options{AccountSID: "AC123", AuthToken: "tok", Region: "IE1", BaseURL: srv.URL})
	if _, err := c.FetchAttributes(context.Background(), "IS1", "CH1"); err != nil {
		t.Fatal(err)
	}
	if rec.hosts[0] != "conversations.ie1.twilio.com" {
		t.Fatalf("regional host = %q", rec.hosts[0])
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(Options{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL})
	_, err := c.FetchAttributes(context.Background(), "IS1", "CHmissing")
	var te *twclient.TwilioRestError
	if !errors.As(err, &te) || te.Status != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}

	bad := NewClient(Options{AccountSID: "AC123", AuthToken: "wrong", BaseURL: srv.URL})
	if _, err := bad.ListWebhooks(context.Background(), "IS1", "CH1"); err == nil {
		t.Fatal("expected auth failure")
	}
}

func TestClientCanceledContext(t *testing.T) {
	srv, rec := newTestServer(t)
	c := NewClient(Options{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.UpdateAttributes(ctx, "IS1", "CH1", "{}"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(rec.hosts) != 0 {
		t.Fatal("request sent on a canceled context")
	}
}
