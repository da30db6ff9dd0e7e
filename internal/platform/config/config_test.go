package config

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var programID = base58.Encode(bytes.Repeat([]byte{7}, 32))

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{"CERTREG_PROGRAM_ID": programID}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 5*time.Second, cfg.Ledger.TxTimeout)
	assert.Equal(t, "certreg.events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, programID, cfg.ProgramID.String())
	assert.Equal(t, 60, cfg.RateLimit.Writes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{
		"CERTREG_PROGRAM_ID":       programID,
		"CERTREG_ENV":              "production",
		"CERTREG_LEDGER_BACKEND":   "Postgres",
		"CERTREG_POSTGRES_DSN":     "postgres://localhost/certreg",
		"CERTREG_KAFKA_BROKERS":    "k1:9092, k2:9092,",
		"CERTREG_SHUTDOWN_TIMEOUT": "3s",
		"CERTREG_KAFKA_PARTITIONS": "6",
		"CERTREG_REDIS_POOL_SIZE":  "20",
		"CERTREG_TRUSTED_PROXIES":  "10.0.0.0/8, 192.0.2.7,fd00::1/64",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(6), cfg.Kafka.Partitions)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("fd00::/64"),
	}, cfg.Server.TrustedProxies)
}

func TestFromEnvErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing program id":   {},
		"malformed program id": {"CERTREG_PROGRAM_ID": "0OIl"},
		"unknown backend":      {"CERTREG_PROGRAM_ID": programID, "CERTREG_LEDGER_BACKEND": "etcd"},
		"postgres without dsn": {"CERTREG_PROGRAM_ID": programID, "CERTREG_LEDGER_BACKEND": "postgres"},
		"redis without url":    {"CERTREG_PROGRAM_ID": programID, "CERTREG_LEDGER_BACKEND": "redis"},
		"bad duration":         {"CERTREG_PROGRAM_ID": programID, "CERTREG_LEDGER_TX_TIMEOUT": "soon"},
		"bad integer":          {"CERTREG_PROGRAM_ID": programID, "CERTREG_REDIS_POOL_SIZE": "many"},
		"bad trusted proxy":    {"CERTREG_PROGRAM_ID": programID, "CERTREG_TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(lookup(vars))
			assert.Error(t, err)
		})
	}
}
