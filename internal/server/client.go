package server

import (
	"context"

	"go.uber.org/atomic"

	"github.com/skoocda/async-ticket-server/internal/domain"
	"github.com/skoocda/async-ticket-server/pkg/util"
)

// Client is the caller-facing handle. Handles are cheap to clone and the
// clones share one command queue; each submitted command gets its own
// one-shot reply channel, so replies cannot be misdelivered.
//
// A handle may be used from many goroutines, but Close must not race with
// in-flight calls on the same handle; clone one handle per goroutine
// instead. The shared queue closes when the last handle is closed, which
// drains and stops the server loop.
type Client struct {
	srv    *Server
	closed *atomic.Bool
	refs   *atomic.Int64
}

func newClient(srv *Server) *Client {
	return &Client{
		srv:    srv,
		closed: atomic.NewBool(false),
		refs:   atomic.NewInt64(1),
	}
}

// Clone returns an independent handle sharing the same command queue.
// Cloning a closed handle yields another closed handle: once a handle has
// released its reference it can no longer keep the queue alive.
func (c *Client) Clone() *Client {
	if c.closed.Load() {
		return &Client{srv: c.srv, closed: atomic.NewBool(true), refs: c.refs}
	}
	c.refs.Inc()
	return &Client{srv: c.srv, closed: atomic.NewBool(false), refs: c.refs}
}

// Close releases this handle. Closing the last handle closes the command
// queue; the loop finishes the commands already queued and then stops.
// Close is idempotent per handle.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.refs.Dec() == 0 {
		close(c.srv.commands)
	}
}

// Insert submits a draft and returns the assigned identifier.
func (c *Client) Insert(ctx context.Context, draft domain.TicketDraft) (domain.TicketID, error) {
	cmd := &insertCommand{draft: draft, reply: make(chan insertReply, 1)}
	if err := c.submit(ctx, cmd); err != nil {
		return 0, err
	}
	reply, err := await(ctx, c.srv, cmd.reply)
	if err != nil {
		return 0, err
	}
	return reply.id, reply.err
}

// Get returns a snapshot of the ticket with the given identifier.
func (c *Client) Get(ctx context.Context, id domain.TicketID) (domain.Ticket, error) {
	cmd := &getCommand{id: id, reply: make(chan getReply, 1)}
	if err := c.submit(ctx, cmd); err != nil {
		return domain.Ticket{}, err
	}
	reply, err := await(ctx, c.srv, cmd.reply)
	if err != nil {
		return domain.Ticket{}, err
	}
	return reply.ticket, reply.err
}

// UpdateStatus changes only the status field of an existing ticket.
func (c *Client) UpdateStatus(ctx context.Context, id domain.TicketID, status domain.TicketStatus) error {
	cmd := &updateStatusCommand{id: id, status: status, reply: make(chan updateStatusReply, 1)}
	if err := c.submit(ctx, cmd); err != nil {
		return err
	}
	reply, err := await(ctx, c.srv, cmd.reply)
	if err != nil {
		return err
	}
	return reply.err
}

// Patch applies the present fields of a partial update and returns the
// updated snapshot.
func (c *Client) Patch(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (domain.Ticket, error) {
	cmd := &patchCommand{id: id, patch: patch, reply: make(chan patchReply, 1)}
	if err := c.submit(ctx, cmd); err != nil {
		return domain.Ticket{}, err
	}
	reply, err := await(ctx, c.srv, cmd.reply)
	if err != nil {
		return domain.Ticket{}, err
	}
	return reply.ticket, reply.err
}

// List returns snapshots of every ticket in insertion order.
func (c *Client) List(ctx context.Context) ([]domain.Ticket, error) {
	cmd := &listCommand{reply: make(chan listReply, 1)}
	if err := c.submit(ctx, cmd); err != nil {
		return nil, err
	}
	reply, err := await(ctx, c.srv, cmd.reply)
	if err != nil {
		return nil, err
	}
	return reply.tickets, nil
}

func (c *Client) submit(ctx context.Context, cmd command) error {
	if c.closed.Load() {
		return util.NewServerUnavailable("client handle closed")
	}
	select {
	case c.srv.commands <- cmd:
		return nil
	case <-c.srv.done:
		return util.NewServerUnavailable("ticket server stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await blocks until the loop fulfills the reply, the caller abandons the
// wait, or the loop stops. A stopped loop may still have replied just before
// exiting, so the reply channel gets one last non-blocking look.
func await[T any](ctx context.Context, srv *Server, reply <-chan T) (T, error) {
	var zero T
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-srv.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, util.NewServerUnavailable("ticket server stopped")
		}
	}
}
