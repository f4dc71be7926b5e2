package domain

import (
	"fmt"
	"time"

	"github.com/skoocda/async-ticket-server/pkg/util"
)

// TicketID uniquely identifies a ticket. Identifiers are assigned once,
// strictly increase over the store's lifetime, and are never reused.
type TicketID uint64

func (id TicketID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusToDo       TicketStatus = "TODO"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusDone       TicketStatus = "DONE"
)

// Valid reports whether s is a known status. Any transition between valid
// statuses is legal.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusToDo, TicketStatusInProgress, TicketStatusDone:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the work-item record held by the store. Callers only ever see
// snapshots; the store's own copy is never handed out.
type Ticket struct {
	ID          TicketID       `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      TicketStatus   `json:"status"`
	Priority    TicketPriority `json:"priority"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TicketDraft describes ticket creation payload.
type TicketDraft struct {
	Title       string
	Description string
	Priority    TicketPriority
}

// TicketPatch describes a partial update. Nil fields are untouched.
type TicketPatch struct {
	Title       *string
	Description *string
	Status      *TicketStatus
	Priority    *TicketPriority
}

// Empty reports whether the patch carries no fields at all.
func (p TicketPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil
}

// Limits bounds ticket text fields. The defaults mirror the original
// exercise; both are overridable through configuration.
type Limits struct {
	TitleMaxBytes       int
	DescriptionMaxBytes int
}

// DefaultLimits returns the stock field bounds.
func DefaultLimits() Limits {
	return Limits{TitleMaxBytes: 50, DescriptionMaxBytes: 500}
}

// Validate checks a draft against the limits. It runs before any identifier
// is allocated, so a rejected draft never consumes an id.
func (d TicketDraft) Validate(limits Limits) error {
	if err := validateTitle(d.Title, limits); err != nil {
		return err
	}
	if err := validateDescription(d.Description, limits); err != nil {
		return err
	}
	if d.Priority != "" && !d.Priority.Valid() {
		return util.NewValidationError("unknown priority", map[string]any{"priority": string(d.Priority)})
	}
	return nil
}

// Validate checks the fields a patch actually carries.
func (p TicketPatch) Validate(limits Limits) error {
	if p.Title != nil {
		if err := validateTitle(*p.Title, limits); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description, limits); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return util.NewValidationError("unknown status", map[string]any{"status": string(*p.Status)})
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return util.NewValidationError("unknown priority", map[string]any{"priority": string(*p.Priority)})
	}
	return nil
}

func validateTitle(title string, limits Limits) error {
	if title == "" {
		return util.NewValidationError("title cannot be empty", nil)
	}
	if len(title) > limits.TitleMaxBytes {
		return util.NewValidationError("title too long", map[string]any{
			"max_bytes": limits.TitleMaxBytes,
			"got_bytes": len(title),
		})
	}
	return nil
}

func validateDescription(description string, limits Limits) error {
	if description == "" {
		return util.NewValidationError("description cannot be empty", nil)
	}
	if len(description) > limits.DescriptionMaxBytes {
		return util.NewValidationError("description too long", map[string]any{
			"max_bytes": limits.DescriptionMaxBytes,
			"got_bytes": len(description),
		})
	}
	return nil
}
