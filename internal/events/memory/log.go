package memory

import (
	"context"
	"sync"

	"certreg/internal/events"
)

// Log is an append-only in-process event log. With a capacity set, only the
// most recent envelopes are retained.
type Log struct {
	mu       sync.RWMutex
	entries  []events.Envelope
	capacity int
}

type Option func(*Log)

// WithCapacity keeps at most n envelopes, dropping the oldest first.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func New(opts ...Option) *Log {
	l := &Log{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) Publish(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, env)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-l.capacity:]...)
	}
	return nil
}

// List returns a snapshot of every published envelope in order.
func (l *Log) List() []events.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]events.Envelope, len(l.entries))
	copy(out, l.entries)
	return out
}

// ListByType returns the envelopes of one event type in order.
func (l *Log) ListByType(eventType string) []events.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []events.Envelope
	for _, e := range l.entries {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
