// Package events carries committed registry mutations to downstream sinks.
// Publishing is a side channel: a sink failure never undoes a committed write.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of one event.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Address   string          `json:"address"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload and stamps a fresh event id.
func NewEnvelope(eventType, addr string, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New(),
		Type:      eventType,
		Address:   addr,
		Timestamp: at.UTC(),
		Payload:   raw,
	}, nil
}

// Publisher delivers envelopes to a sink.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Multi fans an envelope out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every envelope.
type Discard struct{}

func (Discard) Publish(context.Context, Envelope) error { return nil }
