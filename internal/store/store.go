// Package store holds the canonical ticket mapping. The store is not
// internally synchronized: exactly one goroutine (the server loop) owns it,
// and every access is serialized through that owner. Thread safety here is
// structural, not lock-based.
package store

import (
	"errors"
	"math"
	"time"

	"github.com/skoocda/async-ticket-server/internal/domain"
	"github.com/skoocda/async-ticket-server/pkg/util"
)

// ErrIDExhausted reports that the identifier space has run out. The server
// loop treats it as fatal: identifiers must never be recycled.
var ErrIDExhausted = errors.New("ticket identifier space exhausted")

// TicketStore owns the id → ticket mapping and the id counter.
type TicketStore struct {
	tickets map[domain.TicketID]*domain.Ticket
	order   []domain.TicketID
	nextID  domain.TicketID
	limits  domain.Limits
	now     func() time.Time
}

// New creates an empty store. Identifiers start at 1.
func New(limits domain.Limits) *TicketStore {
	return NewStartingAt(limits, 1)
}

// NewStartingAt creates an empty store whose first identifier will be next.
// Identifier zero is reserved; a zero next is bumped to 1.
func NewStartingAt(limits domain.Limits, next domain.TicketID) *TicketStore {
	if next == 0 {
		next = 1
	}
	return &TicketStore{
		tickets: make(map[domain.TicketID]*domain.Ticket),
		nextID:  next,
		limits:  limits,
		now:     time.Now,
	}
}

// Insert validates the draft, allocates the next identifier and stores a new
// ticket with status TODO. Validation runs first so a rejected draft never
// consumes an identifier.
func (s *TicketStore) Insert(draft domain.TicketDraft) (domain.TicketID, error) {
	if err := draft.Validate(s.limits); err != nil {
		return 0, err
	}
	if s.nextID == math.MaxUint64 {
		return 0, ErrIDExhausted
	}

	id := s.nextID
	s.nextID++

	priority := draft.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	now := s.now()
	s.tickets[id] = &domain.Ticket{
		ID:          id,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      domain.TicketStatusToDo,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.order = append(s.order, id)
	return id, nil
}

// Get returns a snapshot of the ticket, or false when the id is unknown.
func (s *TicketStore) Get(id domain.TicketID) (domain.Ticket, bool) {
	ticket, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, false
	}
	return *ticket, true
}

// UpdateStatus mutates only the status field of an existing ticket.
func (s *TicketStore) UpdateStatus(id domain.TicketID, status domain.TicketStatus) error {
	if !status.Valid() {
		return util.NewValidationError("unknown status", map[string]any{"status": string(status)})
	}
	ticket, ok := s.tickets[id]
	if !ok {
		return util.NewNotFound("ticket", map[string]any{"id": id.String()})
	}
	ticket.Status = status
	ticket.UpdatedAt = s.now()
	return nil
}

// Apply validates the patch and applies its present fields to an existing
// ticket, returning the updated snapshot.
func (s *TicketStore) Apply(id domain.TicketID, patch domain.TicketPatch) (domain.Ticket, error) {
	if err := patch.Validate(s.limits); err != nil {
		return domain.Ticket{}, err
	}
	ticket, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, util.NewNotFound("ticket", map[string]any{"id": id.String()})
	}
	if patch.Title != nil {
		ticket.Title = *patch.Title
	}
	if patch.Description != nil {
		ticket.Description = *patch.Description
	}
	if patch.Status != nil {
		ticket.Status = *patch.Status
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if !patch.Empty() {
		ticket.UpdatedAt = s.now()
	}
	return *ticket, nil
}

// List returns snapshots of every ticket in insertion order. The returned
// slice never aliases internal storage.
func (s *TicketStore) List() []domain.Ticket {
	out := make([]domain.Ticket, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tickets[id])
	}
	return out
}

// Len reports the number of stored tickets.
func (s *TicketStore) Len() int {
	return len(s.tickets)
}
