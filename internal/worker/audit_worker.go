package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/ticketdesk/ticketdesk/internal/events"
)

// StartAuditWorker subscribes an audit logger to every lifecycle event
// so each mutation is recorded with its actor.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}

	handler := func(_ context.Context, event events.Event) error {
		logger.Info("audit",
			zap.String("event", string(event.Type)),
			zap.String("actor_id", event.ActorID),
			zap.String("ticket_id", event.TicketID),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}

	for _, eventType := range []events.EventType{
		events.EventUserRegistered,
		events.EventTicketCreated,
		events.EventTicketUpdated,
		events.EventTicketDeleted,
	} {
		dispatcher.Subscribe(eventType, handler)
	}
}
