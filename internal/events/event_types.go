package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/skoocda/async-ticket-server/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketPatched       EventType = "ticket_patched"
)

// Event represents a domain event emitted by the server loop after a
// successful mutation.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TicketID  domain.TicketID `json:"ticket_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// NewEvent builds an event envelope with a fresh identifier.
func NewEvent(eventType EventType, ticketID domain.TicketID, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPatchedPayload payload.
type TicketPatchedPayload struct {
	Fields []string `json:"fields"`
}
