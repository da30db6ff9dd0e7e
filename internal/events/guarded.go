package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"certreg/pkg/platform/circuit"
)

// ErrCircuitOpen is returned without contacting the sink while its breaker
// is open.
var ErrCircuitOpen = errors.New("event sink circuit open")

// Guarded fails fast on a sink that keeps failing, so an outage costs each
// mutation one breaker check instead of a produce timeout.
type Guarded struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func Guard(next Publisher, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Publish(ctx context.Context, env Envelope) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("%s: %w", g.breaker.Name(), ErrCircuitOpen)
	}
	if err := g.next.Publish(ctx, env); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "event sink circuit opened", "sink", g.breaker.Name(), "error", err)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "event sink circuit closed", "sink", g.breaker.Name())
	}
	return nil
}
