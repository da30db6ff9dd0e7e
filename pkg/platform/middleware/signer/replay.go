package signer

import (
	"context"
	"sync"
	"time"
)

// ReplayGuard admits each token id once for as long as the token is valid.
type ReplayGuard interface {
	// Claim records jti until ttl elapses and reports whether it was new.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// MemoryReplayGuard is a process-local ReplayGuard.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryReplayGuard) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, until := range g.seen {
		if !now.Before(until) {
			delete(g.seen, id)
		}
	}
	if _, ok := g.seen[jti]; ok {
		return false, nil
	}
	g.seen[jti] = now.Add(ttl)
	return true, nil
}
