package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/internal/events"
)

func envelope(t *testing.T, eventType string) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, "addr", time.Unix(10, 0), struct{}{})
	require.NoError(t, err)
	return env
}

func TestLogAppendOnly(t *testing.T) {
	ctx := context.Background()
	log := New()

	first := envelope(t, "IssuerRegistered")
	second := envelope(t, "CertificateIssued")
	require.NoError(t, log.Publish(ctx, first))
	require.NoError(t, log.Publish(ctx, second))

	got := log.List()
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	// snapshot is detached from the log
	got[0].Type = "mutated"
	assert.Equal(t, "IssuerRegistered", log.List()[0].Type)

	assert.Len(t, log.ListByType("CertificateIssued"), 1)
	assert.Empty(t, log.ListByType("CertificateRevoked"))
}

func TestLogRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := New()
	assert.Error(t, log.Publish(ctx, envelope(t, "x")))
	assert.Zero(t, log.Len())
}

func TestLogConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	log := New()
	env := envelope(t, "CertificateIssued")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Publish(ctx, env)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, log.Len())
}

func TestLogCapacityDropsOldest(t *testing.T) {
	ctx := context.Background()
	log := New(WithCapacity(2))

	envs := []events.Envelope{
		envelope(t, "RegistryInitialized"),
		envelope(t, "IssuerRegistered"),
		envelope(t, "CertificateIssued"),
	}
	for _, env := range envs {
		require.NoError(t, log.Publish(ctx, env))
	}

	got := log.List()
	require.Len(t, got, 2)
	assert.Equal(t, envs[1].ID, got[0].ID)
	assert.Equal(t, envs[2].ID, got[1].ID)
}
