package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Smithx10/sdc-vmapi/client"
)

// memStore is a minimal in-memory Store for exercising the Kernel without
// the kvite-backed VMStore.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]*client.Ticket
}

func newMemStore() *memStore { return &memStore{tickets: make(map[string]*client.Ticket)} }

func (m *memStore) PutTicket(t *client.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tickets[t.UUID] = &cp
	return nil
}

func (m *memStore) DeleteTicket(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, uuid)
	return nil
}

func (m *memStore) ListTickets() ([]*client.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*client.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	k, err := New(newMemStore())
	require.NoError(t, err)

	ticket, err := k.Acquire(context.Background(), "vm", "vm-1", "job-1")
	require.NoError(t, err)
	require.Equal(t, client.TicketActive, ticket.State)

	require.NoError(t, k.Release(ticket))
	require.Equal(t, client.TicketReleased, ticket.State)

	// releasing twice is a no-op, not an error
	require.NoError(t, k.Release(ticket))
}

func TestAcquireIsFIFOPerScopeKey(t *testing.T) {
	k, err := New(newMemStore())
	require.NoError(t, err)

	first, err := k.Acquire(context.Background(), "vm", "vm-1", "job-1")
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	acquire := func(holder string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := k.Acquire(context.Background(), "vm", "vm-1", holder)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, holder)
			mu.Unlock()
			require.NoError(t, k.Release(tk))
		}()
	}

	// enqueue job-2, wait for it to register as a waiter, then enqueue
	// job-3, so their relative FIFO order is deterministic.
	acquire("job-2")
	time.Sleep(15 * time.Millisecond)
	acquire("job-3")
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, k.Release(first))
	wg.Wait()

	require.Equal(t, []string{"job-2", "job-3"}, order)
}

func TestAcquireUnblocksOnContextCancel(t *testing.T) {
	k, err := New(newMemStore())
	require.NoError(t, err)

	held, err := k.Acquire(context.Background(), "vm", "vm-1", "job-1")
	require.NoError(t, err)
	defer k.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = k.Acquire(ctx, "vm", "vm-1", "job-2")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireOnDifferentKeysDoesNotBlock(t *testing.T) {
	k, err := New(newMemStore())
	require.NoError(t, err)

	a, err := k.Acquire(context.Background(), "vm", "vm-1", "job-1")
	require.NoError(t, err)
	defer k.Release(a)

	done := make(chan struct{})
	go func() {
		b, err := k.Acquire(context.Background(), "vm", "vm-2", "job-2")
		require.NoError(t, err)
		require.NoError(t, k.Release(b))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on an unrelated key blocked")
	}
}

func TestNewReplaysInFlightTicketsAsHead(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutTicket(&client.Ticket{
		UUID: "stale", Scope: "vm", Key: "vm-1", Holder: "job-0", State: client.TicketActive,
	}))

	k, err := New(store)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Acquire(ctx, "vm", "vm-1", "job-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSweepExpiresTicketsWithDeadHolders(t *testing.T) {
	k, err := New(newMemStore())
	require.NoError(t, err)

	ticket, err := k.Acquire(context.Background(), "vm", "vm-1", "dead-job")
	require.NoError(t, err)

	require.NoError(t, k.Sweep(func(holder string) bool { return false }))
	require.Equal(t, client.TicketExpired, ticket.State)

	// the queue is free again
	next, err := k.Acquire(context.Background(), "vm", "vm-1", "job-2")
	require.NoError(t, err)
	require.NoError(t, k.Release(next))
}
