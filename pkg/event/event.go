package event

// RelayEvent is published after every handled inbound message.
// Treat this as a contract (version it when breaking changes are required).
type RelayEvent struct {
	Event           string `json:"event"`
	TraceID         string `json:"trace_id"`
	TS              int64  `json:"ts"` // unix seconds
	ServiceSid      string `json:"service_sid"`
	ConversationSid string `json:"conversation_sid"`
	MessageSid      string `json:"message_sid,omitempty"`
	BotID           string `json:"bot_id,omitempty"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Error           string `json:"error,omitempty"`
}
