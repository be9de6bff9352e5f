package events

import "time"

// EventType labels lifecycle events published by the services.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventTicketCreated  EventType = "ticket.created"
	EventTicketUpdated  EventType = "ticket.updated"
	EventTicketDeleted  EventType = "ticket.deleted"
)

// Event carries the type plus identifying payload fields.
type Event struct {
	Type       EventType
	ActorID    string
	TicketID   string
	OccurredAt time.Time
}
