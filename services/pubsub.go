package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Singhary/chaty/models"
)

// Publisher sends a named event to a topic on the relay. Delivery is
// at-most-once and ordered per topic.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Sink receives envelopes consumed from the relay, normally the WebSocket hub.
type Sink interface {
	Deliver(env models.Envelope)
}

// Relay is a Publisher that can also feed consumed events into a Sink.
type Relay interface {
	Publisher
	Start(ctx context.Context, sink Sink) error
	Close() error
}

func NewEnvelope(topic, event string, payload any) (models.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return models.Envelope{Topic: topic, Event: event, Data: data}, nil
}

// LocalRelay hands published events straight to the sink. It serves single
// node deployments and tests.
type LocalRelay struct {
	mu   sync.RWMutex
	sink Sink
}

func NewLocalRelay() *LocalRelay {
	return &LocalRelay{}
}

func (r *LocalRelay) Publish(ctx context.Context, topic, event string, payload any) error {
	env, err := NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink != nil {
		sink.Deliver(env)
	}
	return nil
}

func (r *LocalRelay) Start(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
	return nil
}

func (r *LocalRelay) Close() error {
	r.mu.Lock()
	r.sink = nil
	r.mu.Unlock()
	return nil
}
