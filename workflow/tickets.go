package workflow

import (
	"fmt"

	"github.com/Smithx10/sdc-vmapi/client"
)

// acquireVMTicket returns a task that takes the per-VM waitlist ticket,
// storing it on jc.Tickets["vm"] for later release.
func acquireVMTicket() Task {
	return Task{
		Name: "waitlist.acquire_vm_ticket",
		Body: func(jc *JobContext) error {
			scope, key := client.VMScope(jc.VM.UUID)
			t, err := jc.Waitlist.Acquire(jc.Ctx, scope, key, jc.Job.UUID)
			if err != nil {
				return fmt.Errorf("acquire vm ticket: %w", err)
			}
			jc.Tickets["vm"] = t
			return nil
		},
	}
}

// releaseVMTicket returns a task that releases the per-VM ticket if held.
// It is a no-op if the ticket was already released early (e.g. by
// migrate-begin, per spec.md §4.3).
func releaseVMTicket() Task {
	return Task{
		Name: "waitlist.release_vm_ticket",
		Body: func(jc *JobContext) error {
			t, ok := jc.Tickets["vm"]
			if !ok {
				return nil
			}
			delete(jc.Tickets, "vm")
			return jc.Waitlist.Release(t)
		},
	}
}

// acquireAllocationTicket returns a task that takes the per-server
// allocation ticket for serverUUID(jc).
func acquireAllocationTicket(serverUUID func(jc *JobContext) string) Task {
	return Task{
		Name: "waitlist.acquire_allocation_ticket",
		Body: func(jc *JobContext) error {
			server := serverUUID(jc)
			scope, key := client.AllocationScope(server)
			t, err := jc.Waitlist.Acquire(jc.Ctx, scope, key, jc.Job.UUID)
			if err != nil {
				return fmt.Errorf("acquire allocation ticket: %w", err)
			}
			jc.Tickets["allocation"] = t
			return nil
		},
	}
}

// releaseAllocationTicket returns a task that releases the per-server
// allocation ticket if held.
func releaseAllocationTicket() Task {
	return Task{
		Name: "waitlist.release_allocation_ticket",
		Body: func(jc *JobContext) error {
			t, ok := jc.Tickets["allocation"]
			if !ok {
				return nil
			}
			delete(jc.Tickets, "allocation")
			return jc.Waitlist.Release(t)
		},
	}
}

// persistVM returns a task that saves jc.VM to the store, the
// generalization of the teacher's Pipeline.Run persisting the guest after
// every stage.
func persistVM() Task {
	return Task{
		Name: "store.put_vm",
		Body: func(jc *JobContext) error {
			return jc.Store.PutVM(jc.VM)
		},
	}
}
