package conversations

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Service keyed by conversation sid.
// Err* fields force the matching operation to fail.
type Memory struct {
	mu sync.Mutex

	Webhooks     map[string][]Webhook
	Participants map[string][]Participant
	Attributes   map[string]string
	Updates      []string // every UpdateAttributes payload, in order

	ErrWebhooks     error
	ErrParticipants error
	ErrFetch        error
	ErrUpdate       error
}

var _ Service = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		Webhooks:     map[string][]Webhook{},
		Participants: map[string][]Participant{},
		Attributes:   map[string]string{},
	}
}

func (m *Memory) ListWebhooks(_ context.Context, _, conversationSid string) ([]Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrWebhooks != nil {
		return nil, m.ErrWebhooks
	}
	return append([]Webhook(nil), m.Webhooks[conversationSid]...), nil
}

func (m *Memory) ListParticipants(_ context.Context, _, conversationSid string) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrParticipants != nil {
		return nil, m.ErrParticipants
	}
	return append([]Participant(nil), m.Participants[conversationSid]...), nil
}

func (m *Memory) FetchAttributes(_ context.Context, _, conversationSid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrFetch != nil {
		return "", m.ErrFetch
	}
	attrs, ok := m.Attributes[conversationSid]
	if !ok {
		return "{}", nil
	}
	return attrs, nil
}

func (m *Memory) UpdateAttributes(_ context.Context, _, conversationSid, attributes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrUpdate != nil {
		return m.ErrUpdate
	}
	if conversationSid == "" {
		return fmt.Errorf("memory: empty conversation sid")
	}
	m.Attributes[conversationSid] = attributes
	m.Updates = append(m.Updates, attributes)
	return nil
}

// UpdateCount reports how many attribute updates were applied.
func (m *Memory) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates)
}
