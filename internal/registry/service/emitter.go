package service

import (
	"context"

	"certreg/internal/events"
	"certreg/internal/registry/models"
	"certreg/pkg/address"
	"certreg/pkg/requestcontext"
)

type pendingEvent struct {
	addr  address.Address
	event models.Event
}

// eventBatch holds the events of one transaction attempt.
type eventBatch struct {
	pending []pendingEvent
}

func (b *eventBatch) add(addr address.Address, event models.Event) {
	b.pending = append(b.pending, pendingEvent{addr: addr, event: event})
}

// publish delivers a committed batch. Failures are logged and counted; the
// mutation already committed, so they are never returned to the caller.
func (s *Service) publish(ctx context.Context, batch *eventBatch) {
	if batch == nil {
		return
	}
	at := requestcontext.Now(ctx)
	for _, p := range batch.pending {
		eventType := string(p.event.EventType())
		env, err := events.NewEnvelope(eventType, p.addr.String(), at, p.event)
		if err == nil {
			err = s.publisher.Publish(ctx, env)
		}
		if err != nil {
			if s.metrics != nil {
				s.metrics.IncrementEventPublishFailures()
			}
			s.logger.ErrorContext(ctx, "failed to publish registry event",
				"event_type", eventType,
				"address", p.addr.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}
