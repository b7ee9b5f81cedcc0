// Package waitlist implements the Coordination Kernel: per-VM and
// per-server allocation tickets that serialize mutations which must not
// overlap (spec.md §4.4).
//
// It generalizes the teacher's per-guest PipelineQueue/SyncThrottle pair
// (one FIFO channel per guest, limiting concurrency to one in-flight
// action) into one FIFO queue per (scope, key) pair, with tickets that are
// observable and persisted rather than purely in-memory.
package waitlist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/client"
)

// Store is the persistence boundary the kernel needs: enough to record and
// recover ticket state across restarts. Implemented by store.VMStore.
type Store interface {
	PutTicket(t *client.Ticket) error
	DeleteTicket(uuid string) error
	ListTickets() ([]*client.Ticket, error)
}

type queue struct {
	mu      sync.Mutex
	waiters []chan struct{}
	head    *client.Ticket
}

// Kernel owns one FIFO queue per (scope, key) pair.
type Kernel struct {
	store Store

	mu     sync.Mutex
	queues map[string]*queue
}

// New creates a Kernel backed by store, replaying any tickets left over
// from a previous process (e.g. after a crash) into their queues' head
// position so in-flight holders are not silently forgotten.
func New(store Store) (*Kernel, error) {
	k := &Kernel{store: store, queues: make(map[string]*queue)}

	tickets, err := store.ListTickets()
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.State != client.TicketActive && t.State != client.TicketQueued {
			continue
		}
		q := k.queueFor(t.Scope, t.Key)
		q.mu.Lock()
		if q.head == nil {
			q.head = t
		}
		q.mu.Unlock()
	}
	return k, nil
}

func scopeKey(scope, key string) string { return scope + ":" + key }

func (k *Kernel) queueFor(scope, key string) *queue {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := scopeKey(scope, key)
	q, ok := k.queues[id]
	if !ok {
		q = &queue{}
		k.queues[id] = q
	}
	return q
}

// Acquire blocks until the caller is the sole holder of (scope, key),
// FIFO with respect to other Acquire calls on the same pair, or until ctx
// is canceled. The returned Ticket must be released with Release exactly
// once, from success, error, and cancel paths alike.
func (k *Kernel) Acquire(ctx context.Context, scope, key, holder string) (*client.Ticket, error) {
	q := k.queueFor(scope, key)

	ticket := &client.Ticket{
		UUID:     uuid.NewString(),
		Scope:    scope,
		Key:      key,
		Holder:   holder,
		State:    client.TicketQueued,
		QueuedAt: time.Now().UTC(),
	}
	if err := k.store.PutTicket(ticket); err != nil {
		return nil, err
	}

	my := make(chan struct{}, 1)

	q.mu.Lock()
	if q.head == nil {
		q.head = ticket
		close(my) // already at the front
	} else {
		q.waiters = append(q.waiters, my)
	}
	q.mu.Unlock()

	select {
	case <-my:
	case <-ctx.Done():
		k.dropWaiter(q, my)
		_ = k.store.DeleteTicket(ticket.UUID)
		return nil, ctx.Err()
	}

	q.mu.Lock()
	q.head = ticket
	q.mu.Unlock()

	ticket.State = client.TicketActive
	ticket.AcquiredAt = time.Now().UTC()
	if err := k.store.PutTicket(ticket); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"scope": scope, "key": key, "ticket": ticket.UUID, "holder": holder}).Info("ticket acquired")
	return ticket, nil
}

func (k *Kernel) dropWaiter(q *queue, my chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == my {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Release frees (scope, key), waking the next FIFO waiter if any. It is
// safe to call more than once; the second call is a no-op.
func (k *Kernel) Release(ticket *client.Ticket) error {
	if ticket == nil || ticket.State == client.TicketReleased || ticket.State == client.TicketExpired {
		return nil
	}
	q := k.queueFor(ticket.Scope, ticket.Key)

	q.mu.Lock()
	if q.head == ticket {
		q.head = nil
	}
	var next chan struct{}
	if len(q.waiters) > 0 {
		next = q.waiters[0]
		q.waiters = q.waiters[1:]
	}
	q.mu.Unlock()

	ticket.State = client.TicketReleased
	if err := k.store.DeleteTicket(ticket.UUID); err != nil {
		return err
	}

	if next != nil {
		close(next)
	}

	log.WithFields(log.Fields{"scope": ticket.Scope, "key": ticket.Key, "ticket": ticket.UUID}).Info("ticket released")
	return nil
}

// Sweep expires any active ticket whose holder job is no longer known to
// be running, per isRunning. It is meant to be called periodically from a
// background loop the same way the teacher prunes its job log.
func (k *Kernel) Sweep(isRunning func(holder string) bool) error {
	tickets, err := k.store.ListTickets()
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if t.State == client.TicketActive && !isRunning(t.Holder) {
			log.WithFields(log.Fields{"ticket": t.UUID, "holder": t.Holder}).Warn("expiring ticket with dead holder")
			// The store hands back copies; release the queue's own head
			// ticket so the queue is actually freed.
			q := k.queueFor(t.Scope, t.Key)
			q.mu.Lock()
			if q.head != nil && q.head.UUID == t.UUID {
				t = q.head
			}
			q.mu.Unlock()
			if err := k.Release(t); err != nil {
				return err
			}
			t.State = client.TicketExpired
		}
	}
	return nil
}
