package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/internal/events"
	"certreg/internal/events/memory"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, events.Envelope) error { return f.err }

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	env, err := events.NewEnvelope("CertificateRevoked", "addr1", at, map[string]any{"certificate_id": "c-1"})
	require.NoError(t, err)

	assert.NotEqual(t, [16]byte{}, [16]byte(env.ID))
	assert.Equal(t, "CertificateRevoked", env.Type)
	assert.Equal(t, "addr1", env.Address)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.True(t, at.Equal(env.Timestamp))
	assert.JSONEq(t, `{"certificate_id":"c-1"}`, string(env.Payload))

	other, err := events.NewEnvelope("CertificateRevoked", "addr1", at, nil)
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, other.ID)

	_, err = events.NewEnvelope("Bad", "addr1", at, make(chan int))
	assert.Error(t, err)
}

func TestEnvelopeJSON(t *testing.T) {
	env, err := events.NewEnvelope("IssuerStatusUpdated", "a", time.Unix(100, 0), map[string]bool{"active": false})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "type", "address", "timestamp", "payload"} {
		assert.Contains(t, fields, key)
	}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	env, err := events.NewEnvelope("RegistryInitialized", "r", time.Unix(1, 0), struct{}{})
	require.NoError(t, err)

	t.Run("delivers to every sink", func(t *testing.T) {
		a, b := memory.New(), memory.New()
		require.NoError(t, events.Multi{a, nil, b}.Publish(ctx, env))
		assert.Equal(t, 1, a.Len())
		assert.Equal(t, 1, b.Len())
	})

	t.Run("keeps going past a failing sink and joins errors", func(t *testing.T) {
		errA := errors.New("sink a down")
		errB := errors.New("sink b down")
		log := memory.New()

		err := events.Multi{failingPublisher{errA}, log, failingPublisher{errB}}.Publish(ctx, env)
		require.Error(t, err)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.Equal(t, 1, log.Len())
	})

	t.Run("empty multi is a no-op", func(t *testing.T) {
		assert.NoError(t, events.Multi{}.Publish(ctx, env))
		assert.NoError(t, events.Discard{}.Publish(ctx, env))
	})
}
