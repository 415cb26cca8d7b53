// Package events publishes domain events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"sync"
)

const (
	RoutingRegistrationConfirmed = "registration.confirmed"
	RoutingSubscriptionChanged   = "subscription.changed"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// Message is a publish captured by Recorder.
type Message struct {
	RoutingKey string
	Body       json.RawMessage
}

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{RoutingKey: routingKey, Body: body})
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// ByRoutingKey returns the captured messages published under key.
func (r *Recorder) ByRoutingKey(key string) []Message {
	var out []Message
	for _, msg := range r.Messages() {
		if msg.RoutingKey == key {
			out = append(out, msg)
		}
	}
	return out
}
