// Package memory records published events in process. It backs local runs
// without Pub/Sub and worker tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tesfandiari1/llms.txt/internal/digest"
)

var _ digest.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call as it would go on the wire.
type PublishedMessage struct {
	ID    string
	Topic string
	Data  []byte
}

// Decode unmarshals the message body into v.
func (m PublishedMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish JSON-encodes payload and records it under a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
