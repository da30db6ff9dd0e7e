package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"certreg/internal/events"
	eventshandler "certreg/internal/events/handler"
	eventskafka "certreg/internal/events/kafka"
	eventsmemory "certreg/internal/events/memory"
	"certreg/internal/ledger"
	ledgermemory "certreg/internal/ledger/memory"
	ledgerpg "certreg/internal/ledger/postgres"
	ledgerredis "certreg/internal/ledger/redis"
	"certreg/internal/platform/config"
	"certreg/internal/platform/httpserver"
	"certreg/internal/platform/logger"
	"certreg/internal/platform/metrics"
	platformredis "certreg/internal/platform/redis"
	ratelimitmw "certreg/internal/ratelimit/middleware"
	ratelimitmodels "certreg/internal/ratelimit/models"
	ratelimitstore "certreg/internal/ratelimit/store"
	registryhandler "certreg/internal/registry/handler"
	registrymetrics "certreg/internal/registry/metrics"
	"certreg/internal/registry/service"
	httptransport "certreg/internal/transport/http"
	"certreg/pkg/address"
	"certreg/pkg/platform/circuit"
	"certreg/pkg/platform/middleware/signer"
)

const eventLogCapacity = 10_000

// main wires dependencies and runs the server until SIGINT or SIGTERM.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	ledger  ledger.Ledger
	redis   *platformredis.Client
	health  map[string]httptransport.HealthCheck
	closers []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	inf, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	eventLog := eventsmemory.New(eventsmemory.WithCapacity(eventLogCapacity))
	publishers := events.Multi{eventLog}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := eventskafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, eventskafka.WithLogger(log))
		if err != nil {
			return err
		}
		defer kp.Close()
		if err := kp.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}
		breaker := circuit.New("kafka", circuit.WithCooldown(15*time.Second))
		publishers = append(publishers, events.Guard(kp, breaker, log))
		log.Info("kafka event sink enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	deriver := address.NewDeriver(cfg.ProgramID)
	svc, err := service.New(inf.ledger, deriver,
		service.WithLogger(log),
		service.WithPublisher(publishers),
		service.WithMetrics(registrymetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("build registry service: %w", err)
	}

	var guard signer.ReplayGuard = signer.NewMemoryReplayGuard()
	var limitStore ratelimitmw.Store = ratelimitstore.NewMemory()
	if inf.redis != nil {
		guard = platformredis.NewReplayGuard(inf.redis.Client)
		limitStore = ratelimitstore.NewRedis(inf.redis.Client)
	}
	signerMiddleware := signer.New(
		signer.NewVerifier(signer.WithLeeway(cfg.Server.TokenLeeway)),
		signer.WithReplayGuard(guard),
		signer.WithLogger(log),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metrics:  metrics.New(),
		Gatherer: prometheus.DefaultGatherer,
		Health:   inf.health,
		Timeout:  30 * time.Second,

		TrustedProxies: cfg.Server.TrustedProxies,

		Middlewares: []func(http.Handler) http.Handler{
			ratelimitmw.New(limitStore, ratelimitmodels.Policy{
				Limit:  cfg.RateLimit.Writes,
				Window: cfg.RateLimit.Window,
			}, log).LimitWrites,
		},
		Routes: []httptransport.RouteRegistrar{
			registryhandler.New(svc, deriver, signerMiddleware.RequireSigner, log),
			eventshandler.New(eventLog),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certreg", "addr", cfg.Server.Addr, "ledger", cfg.Ledger.Backend, "program_id", cfg.ProgramID.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildInfra opens the configured ledger backend. Redis is connected whenever
// a URL is set, since the replay guard uses it even with another ledger.
func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{health: make(map[string]httptransport.HealthCheck)}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		inf.redis = client
		inf.health["redis"] = client.Health
		inf.closers = append(inf.closers, func() { _ = client.Close() })
	}

	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory ledger; state is lost on restart")
		inf.ledger = ledgermemory.New(ledgermemory.WithTxTimeout(cfg.Ledger.TxTimeout))
	case config.BackendPostgres:
		db, err := ledgerpg.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			inf.close()
			return nil, err
		}
		inf.closers = append(inf.closers, func() { _ = db.Close() })
		pl := ledgerpg.New(db, ledgerpg.WithTxTimeout(cfg.Ledger.TxTimeout))
		if err := pl.Migrate(ctx); err != nil {
			inf.close()
			return nil, err
		}
		inf.ledger = pl
		inf.health["postgres"] = pl.Health
	case config.BackendRedis:
		inf.ledger = ledgerredis.New(client.Client,
			ledgerredis.WithMaxAttempts(cfg.Redis.MaxTxRetries),
			ledgerredis.WithTxTimeout(cfg.Ledger.TxTimeout),
		)
	}
	return inf, nil
}
