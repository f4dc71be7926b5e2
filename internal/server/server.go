// Package server implements the ticket service's concurrency core: a single
// goroutine exclusively owns the ticket store and drains a shared command
// queue, while any number of client handles submit commands and await
// correlated replies on per-request one-shot channels.
//
// The store itself carries no locks. Correctness is structural: one owner,
// hand-off channels, FIFO processing. Each dequeued command runs to
// completion before the next one starts, so every operation is atomic with
// respect to all callers.
package server

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/skoocda/async-ticket-server/internal/domain"
	"github.com/skoocda/async-ticket-server/internal/events"
	"github.com/skoocda/async-ticket-server/internal/observability"
	"github.com/skoocda/async-ticket-server/internal/store"
)

const (
	stateRunning int32 = iota
	stateStopped
)

// Server runs the loop that owns the ticket store. All store access funnels
// through its command queue.
type Server struct {
	store      *store.TicketStore
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher

	commands chan command
	done     chan struct{}
	state    *atomic.Int32
}

// Dependencies bundles collaborators for Spawn. Logger, Metrics and
// Dispatcher may be nil.
type Dependencies struct {
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher
	Limits     domain.Limits
	// Store supplies a pre-built ticket store; nil means a fresh store
	// constructed from Limits.
	Store *store.TicketStore
	// QueueCapacity buffers the shared command queue. Zero makes submission
	// a rendezvous with the loop.
	QueueCapacity int
}

// Spawn starts the server loop goroutine and returns it together with the
// first client handle. Closing every handle closes the queue and stops the
// loop after the remaining commands have been drained.
func Spawn(deps Dependencies) (*Server, *Client) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limits := deps.Limits
	if limits == (domain.Limits{}) {
		limits = domain.DefaultLimits()
	}
	capacity := deps.QueueCapacity
	if capacity < 0 {
		capacity = 0
	}

	st := deps.Store
	if st == nil {
		st = store.New(limits)
	}

	srv := &Server{
		store:      st,
		logger:     logger,
		metrics:    deps.Metrics,
		dispatcher: deps.Dispatcher,
		commands:   make(chan command, capacity),
		done:       make(chan struct{}),
		state:      atomic.NewInt32(stateRunning),
	}
	go srv.run()
	return srv, newClient(srv)
}

func (srv *Server) run() {
	srv.logger.Info("ticket server loop started")
	defer func() {
		srv.state.Store(stateStopped)
		close(srv.done)
		srv.logger.Info("ticket server loop stopped", zap.Int("tickets", srv.store.Len()))
	}()

	// Commands are processed strictly in arrival order. A command failure
	// concerns only its caller; the loop stops solely on queue closure or
	// identifier exhaustion.
	for cmd := range srv.commands {
		if err := cmd.execute(srv); err != nil {
			srv.logger.Error("fatal store failure, stopping loop", zap.Error(err))
			return
		}
	}
}

// Running reports whether the loop is still draining the queue.
func (srv *Server) Running() bool {
	return srv.state.Load() == stateRunning
}

// Done is closed once the loop has exited.
func (srv *Server) Done() <-chan struct{} {
	return srv.done
}
