package server_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoocda/async-ticket-server/internal/domain"
	"github.com/skoocda/async-ticket-server/internal/events"
	"github.com/skoocda/async-ticket-server/internal/observability"
	"github.com/skoocda/async-ticket-server/internal/server"
	"github.com/skoocda/async-ticket-server/internal/store"
	"github.com/skoocda/async-ticket-server/pkg/util"
)

func spawn(t *testing.T, deps server.Dependencies) (*server.Server, *server.Client) {
	t.Helper()
	srv, client := server.Spawn(deps)
	t.Cleanup(func() {
		client.Close()
		select {
		case <-srv.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("server loop did not stop")
		}
	})
	return srv, client
}

func TestInsertGetUpdateScenario(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})
	ctx := context.Background()

	id, err := client.Insert(ctx, domain.TicketDraft{Title: "Fix bug", Description: "NPE on login"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketID(1), id)

	ticket, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, ticket.ID)
	assert.Equal(t, "Fix bug", ticket.Title)
	assert.Equal(t, "NPE on login", ticket.Description)
	assert.Equal(t, domain.TicketStatusToDo, ticket.Status)

	require.NoError(t, client.UpdateStatus(ctx, id, domain.TicketStatusInProgress))

	ticket, err = client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, "Fix bug", ticket.Title)
	assert.Equal(t, "NPE on login", ticket.Description)

	_, err = client.Get(ctx, 2)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", util.ToDomainError(err).Code)
}

func TestConcurrentInserts(t *testing.T) {
	const (
		callers          = 50
		insertsPerCaller = 100
	)

	_, client := spawn(t, server.Dependencies{QueueCapacity: 16})
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[domain.TicketID]struct{}, callers*insertsPerCaller)
	)
	for caller := 0; caller < callers; caller++ {
		wg.Add(1)
		handle := client.Clone()
		go func(caller int) {
			defer wg.Done()
			defer handle.Close()
			for i := 0; i < insertsPerCaller; i++ {
				id, err := handle.Insert(ctx, domain.TicketDraft{
					Title:       fmt.Sprintf("ticket %d/%d", caller, i),
					Description: "concurrent insert",
				})
				if err != nil {
					t.Errorf("insert failed: %v", err)
					return
				}
				mu.Lock()
				if _, dup := ids[id]; dup {
					t.Errorf("duplicate id %d", id)
				}
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}(caller)
	}
	wg.Wait()

	assert.Len(t, ids, callers*insertsPerCaller)

	tickets, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, callers*insertsPerCaller)

	// Listing follows insertion order, which for monotonic ids is id order.
	for i := 1; i < len(tickets); i++ {
		assert.Greater(t, tickets[i].ID, tickets[i-1].ID)
	}
}

func TestPerCallerIDsStrictlyIncrease(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})
	ctx := context.Background()

	var prev domain.TicketID
	for i := 0; i < 200; i++ {
		id, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestValidationFailureDoesNotStopLoop(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})
	ctx := context.Background()

	_, err := client.Insert(ctx, domain.TicketDraft{Title: "", Description: "A description"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", util.ToDomainError(err).Code)

	// The failed insert consumed no identifier and the loop kept going.
	id, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketID(1), id)
}

func TestUpdateStatusUnknownIDLeavesStoreUnchanged(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})
	ctx := context.Background()

	_, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)

	err = client.UpdateStatus(ctx, 99, domain.TicketStatusDone)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", util.ToDomainError(err).Code)

	tickets, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestPatchAppliesOnlyPresentFields(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})
	ctx := context.Background()

	id, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)

	title := "Modified"
	status := domain.TicketStatusInProgress
	updated, err := client.Patch(ctx, id, domain.TicketPatch{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Modified", updated.Title)
	assert.Equal(t, "A description", updated.Description)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)

	_, err = client.Patch(ctx, 42, domain.TicketPatch{Title: &title})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", util.ToDomainError(err).Code)
}

func TestAbandonedWaitDoesNotAffectLoop(t *testing.T) {
	_, client := spawn(t, server.Dependencies{})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	// The abandoning caller gets a context error one way or another; the
	// loop itself must stay healthy for everyone else.
	_, err := client.Get(canceled, 1)
	require.Error(t, err)

	id, err := client.Insert(context.Background(), domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)

	ticket, err := client.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, ticket.ID)
}

func TestCloseLastHandleStopsLoop(t *testing.T) {
	srv, client := server.Spawn(server.Dependencies{})
	ctx := context.Background()

	clone := client.Clone()

	_, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)

	client.Close()
	assert.True(t, srv.Running(), "loop must keep running while a handle remains")

	// The surviving clone still works after a sibling closed.
	_, err = clone.Insert(ctx, domain.TicketDraft{Title: "Another", Description: "A description"})
	require.NoError(t, err)

	clone.Close()
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server loop did not stop after the last handle closed")
	}
	assert.False(t, srv.Running())

	// A closed handle reports the server as unavailable.
	_, err = clone.Insert(ctx, domain.TicketDraft{Title: "Late", Description: "A description"})
	require.Error(t, err)
	assert.Equal(t, "SERVER_UNAVAILABLE", util.ToDomainError(err).Code)
}

func TestIDExhaustionStopsLoop(t *testing.T) {
	exhausted := store.NewStartingAt(domain.DefaultLimits(), math.MaxUint64)
	srv, client := server.Spawn(server.Dependencies{Store: exhausted})
	defer client.Close()
	ctx := context.Background()

	// The triggering caller gets an unavailability error, not a hang.
	_, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.Error(t, err)
	assert.Equal(t, "SERVER_UNAVAILABLE", util.ToDomainError(err).Code)

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server loop did not stop on identifier exhaustion")
	}
	assert.False(t, srv.Running())

	// Later commands on a still-open handle see the stopped loop.
	_, err = client.Get(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, "SERVER_UNAVAILABLE", util.ToDomainError(err).Code)
}

func TestCloneOfClosedHandleStaysClosed(t *testing.T) {
	srv, client := server.Spawn(server.Dependencies{})
	ctx := context.Background()

	client.Close()
	<-srv.Done()

	// A closed handle must not revive the queue, and closing the dead
	// clone must not close the command channel a second time.
	clone := client.Clone()
	_, err := clone.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.Error(t, err)
	assert.Equal(t, "SERVER_UNAVAILABLE", util.ToDomainError(err).Code)
	clone.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, client := server.Spawn(server.Dependencies{})

	clone := client.Clone()
	client.Close()
	client.Close()
	assert.True(t, srv.Running())

	clone.Close()
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server loop did not stop")
	}
}

func TestEventsPublishedInCommandOrder(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()

	var (
		mu   sync.Mutex
		seen []events.EventType
	)
	record := func(_ context.Context, event events.Event) error {
		mu.Lock()
		seen = append(seen, event.Type)
		mu.Unlock()
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, record)
	dispatcher.Subscribe(events.EventTicketStatusChanged, record)
	dispatcher.Subscribe(events.EventTicketPatched, record)

	srv, client := server.Spawn(server.Dependencies{Dispatcher: dispatcher})
	ctx := context.Background()

	id, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)
	require.NoError(t, client.UpdateStatus(ctx, id, domain.TicketStatusDone))

	title := "Modified"
	_, err = client.Patch(ctx, id, domain.TicketPatch{Title: &title})
	require.NoError(t, err)

	// Reads publish nothing.
	_, err = client.Get(ctx, id)
	require.NoError(t, err)

	client.Close()
	<-srv.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPatched,
	}, seen)
}

func TestMetricsCountCommands(t *testing.T) {
	metrics := observability.NewMetrics(
		server.CommandInsert,
		server.CommandGet,
		server.CommandUpdateStatus,
		server.CommandPatch,
		server.CommandList,
	)
	_, client := spawn(t, server.Dependencies{Metrics: metrics})
	ctx := context.Background()

	id, err := client.Insert(ctx, domain.TicketDraft{Title: "A title", Description: "A description"})
	require.NoError(t, err)
	_, err = client.Get(ctx, id)
	require.NoError(t, err)
	_, err = client.Get(ctx, 99)
	require.Error(t, err)
	_, err = client.List(ctx)
	require.NoError(t, err)

	processed, failed := metrics.CommandSnapshot()
	assert.Equal(t, int64(1), processed[server.CommandInsert])
	assert.Equal(t, int64(2), processed[server.CommandGet])
	assert.Equal(t, int64(1), processed[server.CommandList])
	assert.Equal(t, int64(1), failed[server.CommandGet])
	assert.Equal(t, int64(0), failed[server.CommandInsert])
}

func TestConcurrentMixedWorkload(t *testing.T) {
	const callers = 20

	_, client := spawn(t, server.Dependencies{QueueCapacity: 8})
	ctx := context.Background()

	seed, err := client.Insert(ctx, domain.TicketDraft{Title: "seed", Description: "shared ticket"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for caller := 0; caller < callers; caller++ {
		wg.Add(1)
		handle := client.Clone()
		go func(caller int) {
			defer wg.Done()
			defer handle.Close()
			for i := 0; i < 50; i++ {
				switch i % 4 {
				case 0:
					if _, err := handle.Insert(ctx, domain.TicketDraft{
						Title:       fmt.Sprintf("w%d-%d", caller, i),
						Description: "mixed workload",
					}); err != nil {
						t.Errorf("insert: %v", err)
					}
				case 1:
					if _, err := handle.Get(ctx, seed); err != nil {
						t.Errorf("get: %v", err)
					}
				case 2:
					status := []domain.TicketStatus{
						domain.TicketStatusToDo,
						domain.TicketStatusInProgress,
						domain.TicketStatusDone,
					}[i%3]
					if err := handle.UpdateStatus(ctx, seed, status); err != nil {
						t.Errorf("update: %v", err)
					}
				case 3:
					if _, err := handle.List(ctx); err != nil {
						t.Errorf("list: %v", err)
					}
				}
			}
		}(caller)
	}
	wg.Wait()

	// The seed ticket's non-status fields survived every concurrent update.
	ticket, err := client.Get(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, "seed", ticket.Title)
	assert.Equal(t, "shared ticket", ticket.Description)
	assert.True(t, ticket.Status.Valid())
}
