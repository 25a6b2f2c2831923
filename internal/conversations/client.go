package conversations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/conversations/v1"
)

const pageSize = 50

type Options struct {
	AccountSID string
	AuthToken  string
	Region     string
	BaseURL    string // replaces the API host, e.g. for a proxy
	Timeout    time.Duration
}

// Client adapts the Twilio Conversations v1 API to Service.
// The SDK takes no context: ctx is checked before each call and Timeout
// bounds the request itself.
type Client struct {
	api *openapi.ApiService
}

var _ Service = (*Client)(nil)

func NewClient(opt Options) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 3 * time.Second
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: opt.AccountSID,
		Password: opt.AuthToken,
	})
	if r := strings.ToLower(strings.TrimSpace(opt.Region)); r != "" && r != "us1" {
		rc.SetRegion(r)
	}

	hc := &http.Client{Timeout: opt.Timeout}
	if opt.BaseURL != "" {
		if u, err := url.Parse(opt.BaseURL); err == nil && u.Host != "" {
			hc.Transport = &hostRewrite{scheme: u.Scheme, host: u.Host, next: http.DefaultTransport}
		}
	}
	if c, ok := rc.RequestHandler.Client.(*twclient.Client); ok {
		c.HTTPClient = hc
	}
	return &Client{api: rc.ConversationsV1}
}

// hostRewrite sends every request to a fixed host, keeping the path and query.
// The original host is passed on as X-Forwarded-Host.
type hostRewrite struct {
	scheme string
	host   string
	next   http.RoundTripper
}

func (h *hostRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("X-Forwarded-Host", req.URL.Host)
	r.URL.Scheme = h.scheme
	r.URL.Host = h.host
	r.Host = h.host
	return h.next.RoundTrip(r)
}

func (c *Client) ListWebhooks(ctx context.Context, serviceSid, conversationSid string) ([]Webhook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &openapi.ListServiceConversationScopedWebhookParams{}
	params.SetPageSize(pageSize)
	hooks, err := c.api.ListServiceConversationScopedWebhook(serviceSid, conversationSid, params)
	if err != nil {
		return nil, fmt.Errorf("conversations: list webhooks %s: %w", conversationSid, err)
	}
	out := make([]Webhook, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, Webhook{Sid: deref(h.Sid), Target: deref(h.Target)})
	}
	return out, nil
}

func (c *Client) ListParticipants(ctx context.Context, serviceSid, conversationSid string) ([]Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &openapi.ListServiceConversationParticipantParams{}
	params.SetPageSize(pageSize)
	parts, err := c.api.ListServiceConversationParticipant(serviceSid, conversationSid, params)
	if err != nil {
		return nil, fmt.Errorf("conversations: list participants %s: %w", conversationSid, err)
	}
	out := make([]Participant, 0, len(parts))
	for _, p := range parts {
		out = append(out, Participant{Sid: deref(p.Sid), Identity: deref(p.Identity)})
	}
	return out, nil
}

func (c *Client) FetchAttributes(ctx context.Context, serviceSid, conversationSid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	conv, err := c.api.FetchServiceConversation(serviceSid, conversationSid)
	if err != nil {
		return "", fmt.Errorf("conversations: fetch %s: %w", conversationSid, err)
	}
	return deref(conv.Attributes), nil
}

func (c *Client) UpdateAttributes(ctx context.Context, serviceSid, conversationSid, attributes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.UpdateServiceConversationParams{}
	params.SetAttributes(attributes)
	if _, err := c.api.UpdateServiceConversation(serviceSid, conversationSid, params); err != nil {
		return fmt.Errorf("conversations: update %s: %w", conversationSid, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
