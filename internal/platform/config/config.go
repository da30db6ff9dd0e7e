// Package config reads service configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"certreg/pkg/domain"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Environment string
	ProgramID   domain.PublicKey
	Server      Server
	Ledger      Ledger
	Postgres    Postgres
	Redis       RedisConfig
	Kafka       Kafka
	RateLimit   RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	TokenLeeway     time.Duration

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket address is the client.
	TrustedProxies []netip.Prefix
}

type Ledger struct {
	Backend   string
	TxTimeout time.Duration
}

type Postgres struct {
	DSN string
}

// RedisConfig configures the go-redis client. An empty URL leaves Redis off.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxTxRetries int
}

// Kafka configures the event sink. No brokers means events stay in process.
type Kafka struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// RateLimit caps mutating requests per client IP. Zero Writes disables it.
type RateLimit struct {
	Writes int
	Window time.Duration
}

// IsProduction reports whether logs should be JSON.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// FromEnv builds a Config from CERTREG_* environment variables.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	cfg := Config{
		Environment: env.str("CERTREG_ENV", "development"),
		Server: Server{
			Addr:            env.str("CERTREG_ADDR", ":8080"),
			ShutdownTimeout: env.duration("CERTREG_SHUTDOWN_TIMEOUT", 10*time.Second),
			TokenLeeway:     env.duration("CERTREG_TOKEN_LEEWAY", 30*time.Second),
			TrustedProxies:  env.prefixes("CERTREG_TRUSTED_PROXIES"),
		},
		Ledger: Ledger{
			Backend:   strings.ToLower(env.str("CERTREG_LEDGER_BACKEND", BackendMemory)),
			TxTimeout: env.duration("CERTREG_LEDGER_TX_TIMEOUT", 5*time.Second),
		},
		Postgres: Postgres{
			DSN: env.str("CERTREG_POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			URL:          env.str("CERTREG_REDIS_URL", ""),
			PoolSize:     env.integer("CERTREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: env.integer("CERTREG_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  env.duration("CERTREG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  env.duration("CERTREG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: env.duration("CERTREG_REDIS_WRITE_TIMEOUT", 3*time.Second),
			MaxTxRetries: env.integer("CERTREG_REDIS_MAX_TX_RETRIES", 8),
		},
		Kafka: Kafka{
			Brokers:           env.list("CERTREG_KAFKA_BROKERS"),
			Topic:             env.str("CERTREG_KAFKA_TOPIC", "certreg.events"),
			Partitions:        int32(env.integer("CERTREG_KAFKA_PARTITIONS", 3)),
			ReplicationFactor: int16(env.integer("CERTREG_KAFKA_REPLICATION_FACTOR", 1)),
		},
		RateLimit: RateLimit{
			Writes: env.integer("CERTREG_RATE_LIMIT_WRITES", 60),
			Window: env.duration("CERTREG_RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	if env.err != nil {
		return Config{}, env.err
	}

	programID := env.str("CERTREG_PROGRAM_ID", "")
	if programID == "" {
		return Config{}, fmt.Errorf("CERTREG_PROGRAM_ID is required")
	}
	pk, err := domain.ParsePublicKey(programID)
	if err != nil {
		return Config{}, fmt.Errorf("CERTREG_PROGRAM_ID: %w", err)
	}
	cfg.ProgramID = pk

	switch cfg.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("CERTREG_POSTGRES_DSN is required for the postgres ledger")
		}
	case BackendRedis:
		if cfg.Redis.URL == "" {
			return Config{}, fmt.Errorf("CERTREG_REDIS_URL is required for the redis ledger")
		}
	default:
		return Config{}, fmt.Errorf("unknown CERTREG_LEDGER_BACKEND %q", cfg.Ledger.Backend)
	}
	return cfg, nil
}

// envReader collects the first parse error so FromEnv reads top to bottom.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// prefixes reads a comma list of CIDRs. A bare address is a single-host prefix.
func (e *envReader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range e.list(key) {
		if addr, err := netip.ParseAddr(part); err == nil {
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			if e.err == nil {
				e.err = fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}
