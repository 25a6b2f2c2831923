package bot

import "strings"

const (
	EventMessageAdded = "onMessageAdded"

	// TypingAttribute is merged into conversation attributes while the bot prepares a reply.
	TypingAttribute = "assistantIsTyping"
	// BotIDAttribute is the optional per-conversation bot identifier.
	BotIDAttribute = "botId"

	sessionPrefix      = "conversations__"
	userIdentityPrefix = "user_id:"
)

// Event is the inbound webhook sent by the conversation service.
type Event struct {
	EventType         string `json:"EventType,omitempty"`
	Body              string `json:"Body,omitempty"`
	ConversationSid   string `json:"ConversationSid"`
	ChatServiceSid    string `json:"ChatServiceSid"`
	Author            string `json:"Author"`
	MessageSid        string `json:"MessageSid,omitempty"`
	AssistantIdentity string `json:"AssistantIdentity,omitempty"`
	BotID             string `json:"botId,omitempty"`
}

// Ref returns the conversation the event belongs to.
func (e Event) Ref() ConversationRef {
	return ConversationRef{ServiceSid: e.ChatServiceSid, ConversationSid: e.ConversationSid}
}

type ConversationRef struct {
	ServiceSid      string
	ConversationSid string
}

// SessionID is the deterministic session key shared with the assistant.
func (r ConversationRef) SessionID() string {
	return sessionPrefix + r.ServiceSid + "/" + r.ConversationSid
}

// ParseSessionID reverses SessionID.
func ParseSessionID(s string) (ConversationRef, bool) {
	if !strings.HasPrefix(s, sessionPrefix) {
		return ConversationRef{}, false
	}
	svc, conv, ok := strings.Cut(strings.TrimPrefix(s, sessionPrefix), "/")
	if !ok || svc == "" || conv == "" {
		return ConversationRef{}, false
	}
	return ConversationRef{ServiceSid: svc, ConversationSid: conv}, true
}

// DeriveIdentity keeps already qualified identities (containing ':') and
// scopes bare author ids as user identities.
func DeriveIdentity(author string) string {
	if strings.Contains(author, ":") {
		return author
	}
	return userIdentityPrefix + author
}

// Snapshot is the conversation state a gating decision is made on.
type Snapshot struct {
	ParticipantCount  int
	HasHandoffWebhook bool
	Attributes        map[string]any
	AuthorIdentity    string
}

// Envelope is the JSON body posted to the bot endpoint.
type Envelope struct {
	Body      string `json:"body"`
	Identity  string `json:"identity"`
	SessionID string `json:"session_id"`
	Webhook   string `json:"webhook"`
}

type Status string

const (
	StatusForwarded      Status = "forwarded"
	StatusSkipped        Status = "skipped"
	StatusDuplicate      Status = "duplicate"
	StatusDispatchFailed Status = "dispatch_failed"
)

// Result describes a non-fatal outcome of one invocation.
// Err carries failures that were logged and swallowed (dispatch errors).
type Result struct {
	Status  Status
	Reason  string
	BotID   string
	TraceID string
	Err     error
}
