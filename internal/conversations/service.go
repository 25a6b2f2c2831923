package conversations

import "context"

type Webhook struct {
	Sid    string `json:"sid"`
	Target string `json:"target"`
}

type Participant struct {
	Sid      string `json:"sid"`
	Identity string `json:"identity"`
}

// Service is the subset of the conversation service the relay depends on.
type Service interface {
	ListWebhooks(ctx context.Context, serviceSid, conversationSid string) ([]Webhook, error)
	ListParticipants(ctx context.Context, serviceSid, conversationSid string) ([]Participant, error)
	// FetchAttributes returns the conversation attributes as a raw JSON string.
	FetchAttributes(ctx context.Context, serviceSid, conversationSid string) (string, error)
	UpdateAttributes(ctx context.Context, serviceSid, conversationSid, attributes string) error
}
