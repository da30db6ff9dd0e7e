// Package service implements the registry's operations: registry
// initialization, the issuer directory and the certificate ledger.
//
// Every mutation runs inside one ledger transaction. Events are collected
// while the transaction runs and handed to the publisher only after commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certreg/internal/events"
	"certreg/internal/ledger"
	registrymetrics "certreg/internal/registry/metrics"
	"certreg/internal/registry/store"
	"certreg/pkg/address"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/requestcontext"
)

const tracerName = "certreg/registry"

// Publisher receives events for committed mutations.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Service orchestrates the registry lifecycle over a ledger.
type Service struct {
	ledger    ledger.Ledger
	reader    *store.Reader
	deriver   *address.Deriver
	logger    *slog.Logger
	publisher Publisher
	metrics   *registrymetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service bound to one deployment's address space.
func New(l ledger.Ledger, deriver *address.Deriver, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if deriver == nil {
		return nil, errors.New("address deriver is required")
	}
	s := &Service{
		ledger:  l,
		reader:  store.NewReader(l),
		deriver: deriver,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.Discard{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// Deriver exposes the address space the service stores records in.
func (s *Service) Deriver() *address.Deriver {
	return s.deriver
}

// runInTx executes fn in a ledger transaction. fn may run more than once on
// optimistic backends, so the pending batch is reset at the start of every
// attempt and only the batch of the committed attempt is returned.
func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context, tx *store.Tx, batch *eventBatch) error) (*eventBatch, error) {
	var batch *eventBatch
	err := s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		batch = &eventBatch{}
		return fn(txCtx, store.WrapTx(tx), batch)
	})
	if err != nil {
		return nil, translateLedgerErr(err)
	}
	return batch, nil
}

// startOperation opens a span for op and returns a finisher that records
// duration, failure reason and span status.
func (s *Service) startOperation(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		defer span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
		if err == nil {
			return
		}
		reason := dErrors.Reason(err)
		if reason == "" {
			reason = string(dErrors.CodeOf(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		if s.metrics != nil {
			s.metrics.IncrementOperationError(op, reason)
		}
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			s.logger.ErrorContext(ctx, "registry operation failed",
				"operation", op,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}

func (s *Service) now(ctx context.Context) int64 {
	return requestcontext.Now(ctx).Unix()
}
