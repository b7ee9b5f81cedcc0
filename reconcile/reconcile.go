// Package reconcile implements the Reconciler (spec.md §4.6): applying a
// terminal workflow outcome to the persisted VM and releasing whatever
// tickets the pipeline still held.
//
// It generalizes the teacher's DeleteGuest teardown (which synchronously
// tore down the guest runner, job log, and NIC state together) into a
// three-branch dispatch over workflow.Outcome.Execution, driven by the
// Executor's notification rather than by an in-process call.
package reconcile

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/waitlist"
	"github.com/Smithx10/sdc-vmapi/workflow"
)

// Store is the persistence boundary the Reconciler needs.
type Store interface {
	PutVM(v *client.VM) error
	GetVM(uuid string) (*client.VM, error)
}

// JobLog is the audit boundary the Reconciler needs: appending the
// terminal Job record every outcome produces (P7).
type JobLog interface {
	Put(j *client.Job) error
}

// FabricReaper destroys a fabric's dedicated NAT zone once it has no more
// dependent VMs, mirroring spec.md §4.3's "the NAT zone lifecycle mirrors
// the fabric's last dependent VM". Implemented by package fabric, wired in
// by the composition root.
type FabricReaper interface {
	ReapIfOrphaned(ctx context.Context, ownerUUID string, nics []client.Nic) error
}

// Reconciler applies terminal pipeline outcomes to the store, NAPI, and
// the waitlist kernel.
type Reconciler struct {
	Store        Store
	JobLog       JobLog
	NAPI         *collaborators.NAPIClient
	CNAPI        *collaborators.CNAPIClient
	Waitlist     *waitlist.Kernel
	FabricReaper FabricReaper
}

// Reconcile applies outcome to jc.VM and jc.Job, per the three branches in
// spec.md §4.6.
func (r *Reconciler) Reconcile(ctx context.Context, outcome workflow.Outcome, jc *workflow.JobContext) error {
	jc.Job.Execution = outcome.Execution
	if outcome.Err != nil {
		jc.Job.Error = outcome.Err.Error()
	}

	switch outcome.Execution {
	case client.JobSucceeded:
		if err := r.Store.PutVM(jc.VM); err != nil {
			return err
		}
		if jc.Job.Task == "destroy" && r.FabricReaper != nil {
			nics, _ := jc.Params["_destroyed_nics"].([]client.Nic)
			owner, _ := jc.Params["_destroyed_owner"].(string)
			if err := r.FabricReaper.ReapIfOrphaned(ctx, owner, nics); err != nil {
				log.WithFields(log.Fields{"vm": jc.VM.UUID, "error": err}).Warn("fabric nat reap after destroy failed")
			}
		}
		r.releaseRemaining(jc)

	case client.JobFailed:
		if jc.MarkAsFailedOnError {
			if err := r.cleanupNICs(ctx, jc.VM.UUID); err != nil {
				log.WithFields(log.Fields{"vm": jc.VM.UUID, "error": err}).Error("nic cleanup after failed provision failed")
			}
		}
		jc.VM.State = client.StateFailed
		if err := r.Store.PutVM(jc.VM); err != nil {
			return err
		}
		r.releaseRemaining(jc)

	case client.JobCanceled:
		if err := r.refreshFromCNAPI(ctx, jc.VM); err != nil {
			log.WithFields(log.Fields{"vm": jc.VM.UUID, "error": err}).Warn("cnapi refresh after cancel failed")
		}
		if err := r.Store.PutVM(jc.VM); err != nil {
			return err
		}
		r.releaseRemaining(jc)
	}

	return r.JobLog.Put(jc.Job)
}

// cleanupNICs removes every NIC record NAPI still has for vmUUID, making
// P6 ("GET /nics?belongs_to_uuid=<vm> returns empty") true after a failed
// provision. Grounded on the teacher's DeleteGuest NIC/runner teardown.
func (r *Reconciler) cleanupNICs(ctx context.Context, vmUUID string) error {
	nics, err := r.NAPI.NicsByOwner(ctx, vmUUID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, nic := range nics {
		if err := r.NAPI.DeleteNic(ctx, nic.MAC); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// refreshFromCNAPI re-reads the compute node's authoritative view of a
// zone on cancellation, since the in-flight pipeline may have left the VM
// record stale partway through a mutation.
func (r *Reconciler) refreshFromCNAPI(ctx context.Context, vm *client.VM) error {
	if vm.ServerUUID == "" {
		return nil
	}
	raw, err := r.CNAPI.RefreshVM(ctx, vm.ServerUUID, vm.UUID)
	if err != nil {
		return err
	}
	if state, ok := raw["state"].(string); ok && state != "" {
		vm.State = state
	}
	return nil
}

func (r *Reconciler) releaseRemaining(jc *workflow.JobContext) {
	for name, t := range jc.Tickets {
		if err := r.Waitlist.Release(t); err != nil {
			log.WithFields(log.Fields{"ticket": name, "error": err}).Warn("failed to release ticket during reconciliation")
		}
		delete(jc.Tickets, name)
	}
}
