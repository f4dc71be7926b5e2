package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/skoocda/async-ticket-server/internal/domain"
	"github.com/skoocda/async-ticket-server/internal/events"
	"github.com/skoocda/async-ticket-server/internal/store"
	"github.com/skoocda/async-ticket-server/pkg/util"
)

// Command kinds, used for metrics and logging.
const (
	CommandInsert       = "insert"
	CommandGet          = "get"
	CommandUpdateStatus = "update_status"
	CommandPatch        = "patch"
	CommandList         = "list"
)

// command is one queued request. execute runs on the loop goroutine with
// exclusive store access and replies into the command's one-shot channel.
// A non-nil return is fatal and stops the loop.
type command interface {
	execute(srv *Server) error
}

// Reply channels are buffered with capacity one so the loop's send completes
// without a rendezvous. A caller that abandoned its wait simply never reads
// the buffered value; the loop is unaffected.

type insertReply struct {
	id  domain.TicketID
	err error
}

type insertCommand struct {
	draft domain.TicketDraft
	reply chan insertReply
}

func (c *insertCommand) execute(srv *Server) error {
	id, err := srv.store.Insert(c.draft)
	srv.metrics.RecordCommand(CommandInsert, err)
	if errors.Is(err, store.ErrIDExhausted) {
		c.reply <- insertReply{err: util.NewServerUnavailable("ticket server stopped")}
		return err
	}
	c.reply <- insertReply{id: id, err: err}
	if err == nil {
		ticket, _ := srv.store.Get(id)
		srv.publish(events.NewEvent(events.EventTicketCreated, id, events.TicketCreatedPayload{
			Title:    ticket.Title,
			Priority: ticket.Priority,
		}))
	}
	return nil
}

type getReply struct {
	ticket domain.Ticket
	err    error
}

type getCommand struct {
	id    domain.TicketID
	reply chan getReply
}

func (c *getCommand) execute(srv *Server) error {
	ticket, ok := srv.store.Get(c.id)
	if !ok {
		srv.metrics.RecordCommand(CommandGet, errNotFound)
		c.reply <- getReply{err: util.NewNotFound("ticket", map[string]any{"id": c.id.String()})}
		return nil
	}
	srv.metrics.RecordCommand(CommandGet, nil)
	c.reply <- getReply{ticket: ticket}
	return nil
}

type updateStatusReply struct {
	err error
}

type updateStatusCommand struct {
	id     domain.TicketID
	status domain.TicketStatus
	reply  chan updateStatusReply
}

func (c *updateStatusCommand) execute(srv *Server) error {
	before, _ := srv.store.Get(c.id)
	err := srv.store.UpdateStatus(c.id, c.status)
	srv.metrics.RecordCommand(CommandUpdateStatus, err)
	c.reply <- updateStatusReply{err: err}
	if err == nil {
		srv.publish(events.NewEvent(events.EventTicketStatusChanged, c.id, events.TicketStatusChangedPayload{
			OldStatus: before.Status,
			NewStatus: c.status,
		}))
	}
	return nil
}

type patchReply struct {
	ticket domain.Ticket
	err    error
}

type patchCommand struct {
	id    domain.TicketID
	patch domain.TicketPatch
	reply chan patchReply
}

func (c *patchCommand) execute(srv *Server) error {
	ticket, err := srv.store.Apply(c.id, c.patch)
	srv.metrics.RecordCommand(CommandPatch, err)
	c.reply <- patchReply{ticket: ticket, err: err}
	if err == nil {
		srv.publish(events.NewEvent(events.EventTicketPatched, c.id, events.TicketPatchedPayload{
			Fields: patchedFields(c.patch),
		}))
	}
	return nil
}

type listReply struct {
	tickets []domain.Ticket
}

type listCommand struct {
	reply chan listReply
}

func (c *listCommand) execute(srv *Server) error {
	srv.metrics.RecordCommand(CommandList, nil)
	c.reply <- listReply{tickets: srv.store.List()}
	return nil
}

// errNotFound only feeds the metrics error counter; callers receive the
// richer DomainError built per command.
var errNotFound = errors.New("not found")

func patchedFields(patch domain.TicketPatch) []string {
	fields := make([]string, 0, 4)
	if patch.Title != nil {
		fields = append(fields, "title")
	}
	if patch.Description != nil {
		fields = append(fields, "description")
	}
	if patch.Status != nil {
		fields = append(fields, "status")
	}
	if patch.Priority != nil {
		fields = append(fields, "priority")
	}
	return fields
}

func (srv *Server) publish(event events.Event) {
	if srv.dispatcher == nil {
		return
	}
	if err := srv.dispatcher.Publish(context.Background(), event); err != nil {
		srv.logger.Warn("event publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
