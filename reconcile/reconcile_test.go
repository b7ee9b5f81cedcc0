package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/waitlist"
	"github.com/Smithx10/sdc-vmapi/workflow"
)

type fakeStore struct {
	puts []*client.VM
}

func (f *fakeStore) PutVM(v *client.VM) error { f.puts = append(f.puts, v); return nil }
func (f *fakeStore) GetVM(uuid string) (*client.VM, error) { return nil, nil }

type fakeJobLog struct {
	puts []*client.Job
}

func (f *fakeJobLog) Put(j *client.Job) error { f.puts = append(f.puts, j); return nil }

type fakeReaper struct {
	called bool
	owner  string
	nics   []client.Nic
}

func (f *fakeReaper) ReapIfOrphaned(ctx context.Context, ownerUUID string, nics []client.Nic) error {
	f.called = true
	f.owner = ownerUUID
	f.nics = nics
	return nil
}

func newTestJC(action string) *workflow.JobContext {
	return &workflow.JobContext{
		Job:     &client.Job{UUID: "job-1", Task: action},
		VM:      &client.VM{UUID: "vm-1", OwnerUUID: "owner-1"},
		Params:  map[string]interface{}{},
		Tickets: map[string]*client.Ticket{},
	}
}

func TestReconcileSucceededPersistsVMAndReleasesTickets(t *testing.T) {
	store := &fakeStore{}
	jobLog := &fakeJobLog{}
	k, err := waitlist.New(&noopTicketStore{})
	require.NoError(t, err)
	r := &Reconciler{Store: store, JobLog: jobLog, Waitlist: k}

	jc := newTestJC("start")
	ticket, err := k.Acquire(context.Background(), "vm", "vm-1", "job-1")
	require.NoError(t, err)
	jc.Tickets["vm"] = ticket

	err = r.Reconcile(context.Background(), workflow.Outcome{Execution: client.JobSucceeded}, jc)
	require.NoError(t, err)

	require.Len(t, store.puts, 1)
	require.Equal(t, client.TicketReleased, ticket.State)
	require.Len(t, jobLog.puts, 1)
	require.Equal(t, client.JobSucceeded, jobLog.puts[0].Execution)
}

func TestReconcileSucceededDestroyTriggersFabricReap(t *testing.T) {
	store := &fakeStore{}
	jobLog := &fakeJobLog{}
	k, err := waitlist.New(&noopTicketStore{})
	require.NoError(t, err)
	reaper := &fakeReaper{}
	r := &Reconciler{Store: store, JobLog: jobLog, Waitlist: k, FabricReaper: reaper}

	jc := newTestJC("destroy")
	jc.Params["_destroyed_nics"] = []client.Nic{{MAC: "aa:bb"}}
	jc.Params["_destroyed_owner"] = "owner-1"

	err = r.Reconcile(context.Background(), workflow.Outcome{Execution: client.JobSucceeded}, jc)
	require.NoError(t, err)
	require.True(t, reaper.called)
	require.Equal(t, "owner-1", reaper.owner)
	require.Len(t, reaper.nics, 1)
}

func TestReconcileFailedMarksVMFailedWithoutCleanupWhenPastPointOfNoReturn(t *testing.T) {
	store := &fakeStore{}
	jobLog := &fakeJobLog{}
	k, err := waitlist.New(&noopTicketStore{})
	require.NoError(t, err)
	r := &Reconciler{Store: store, JobLog: jobLog, Waitlist: k}

	jc := newTestJC("provision")
	jc.MarkAsFailedOnError = false

	err = r.Reconcile(context.Background(), workflow.Outcome{Execution: client.JobFailed}, jc)
	require.NoError(t, err)
	require.Len(t, store.puts, 1)
	require.Equal(t, client.StateFailed, store.puts[0].State)
}

func TestReconcileCanceledSkipsCNAPIRefreshWithoutServerUUID(t *testing.T) {
	store := &fakeStore{}
	jobLog := &fakeJobLog{}
	k, err := waitlist.New(&noopTicketStore{})
	require.NoError(t, err)
	r := &Reconciler{Store: store, JobLog: jobLog, Waitlist: k}

	jc := newTestJC("update")
	err = r.Reconcile(context.Background(), workflow.Outcome{Execution: client.JobCanceled}, jc)
	require.NoError(t, err)
	require.Len(t, store.puts, 1)
}

type noopTicketStore struct{}

func (*noopTicketStore) PutTicket(t *client.Ticket) error { return nil }
func (*noopTicketStore) DeleteTicket(uuid string) error   { return nil }
func (*noopTicketStore) ListTickets() ([]*client.Ticket, error) { return nil, nil }
