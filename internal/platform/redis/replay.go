package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var claimDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "certreg_replay_claim_duration_ms",
	Help:    "Latency of signer token replay checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const usedTokenKeyPrefix = "certreg:jti:"

// ReplayGuard remembers used signer token ids in Redis so every instance
// behind a load balancer rejects the same replay.
type ReplayGuard struct {
	client *redis.Client
	prefix string
}

type ReplayGuardOption func(*ReplayGuard)

// WithKeyPrefix namespaces keys, mostly for tests sharing one server.
func WithKeyPrefix(prefix string) ReplayGuardOption {
	return func(g *ReplayGuard) {
		g.prefix = prefix
	}
}

func NewReplayGuard(client *redis.Client, opts ...ReplayGuardOption) *ReplayGuard {
	g := &ReplayGuard{client: client, prefix: usedTokenKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Claim sets the key only if absent; the TTL outlives the token itself.
func (g *ReplayGuard) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	start := time.Now()
	defer func() {
		claimDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ok, err := g.client.SetNX(ctx, g.prefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim token id: %w", err)
	}
	return ok, nil
}
