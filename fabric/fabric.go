// Package fabric implements the fabric-NAT sub-pipeline's external
// dependencies (spec.md §4.3): ensuring a tenant's dedicated NAT zone
// exists before a fabric-attached provision/add-nics pipeline continues,
// and reaping that NAT zone once its fabric's last dependent VM is
// destroyed (scenario §8.7).
//
// It is wired into workflow.Composer as a workflow.NATProvisioner /
// workflow.FabricLookup pair, and into reconcile.Reconciler as a
// reconcile.FabricReaper, by the composition root — none of workflow or
// reconcile import this package directly, avoiding the cycle.
package fabric

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/store"
	"github.com/Smithx10/sdc-vmapi/waitlist"
	"github.com/Smithx10/sdc-vmapi/workflow"
)

// Manager is both a workflow.NATProvisioner and a workflow.FabricLookup,
// and a reconcile.FabricReaper.
type Manager struct {
	Store    *store.VMStore
	Bundle   *collaborators.Bundle
	Waitlist *waitlist.Kernel
}

func alias(fabricUUID string) string { return "nat-" + fabricUUID }

// OwnedFabric resolves networkRef via NAPI and reports whether it is a
// fabric network owned by ownerUUID.
func (m *Manager) OwnedFabric(jc *workflow.JobContext, networkRef, ownerUUID string) (string, bool, error) {
	if networkRef == "" {
		return "", false, nil
	}
	n, err := m.Bundle.NAPI.GetNetwork(jc.Ctx, networkRef)
	if err != nil {
		return "", false, err
	}
	return n.UUID, n.Fabric && n.OwnerUUID == ownerUUID, nil
}

// EnsureFabricNAT finds or provisions the nat-<fabric> zone for fabricUUID,
// waiting for it to reach running before returning, per spec.md §4.3's
// "waits for it before the parent workflow continues".
func (m *Manager) EnsureFabricNAT(jc *workflow.JobContext, fabricUUID, ownerUUID string) (string, error) {
	scope, key := "allocation", "fabricnat:"+fabricUUID
	ticket, err := m.Waitlist.Acquire(jc.Ctx, scope, key, jc.Job.UUID)
	if err != nil {
		return "", fmt.Errorf("fabric: acquiring dedupe ticket: %w", err)
	}
	defer func() {
		if err := m.Waitlist.Release(ticket); err != nil {
			log.WithFields(log.Fields{"fabric": fabricUUID, "error": err}).Warn("failed to release fabricnat dedupe ticket")
		}
	}()

	natAlias := alias(fabricUUID)
	if existing := m.findActiveByAlias(ownerUUID, natAlias); existing != nil {
		return existing.UUID, nil
	}

	nat := &client.VM{
		UUID:              uuid.NewString(),
		OwnerUUID:         ownerUUID,
		Brand:             "joyent-minimal",
		State:             client.StateProvisioning,
		Alias:             natAlias,
		BillingID:         client.ZeroUUID,
		RAM:               128,
		MaxPhysicalMemory: 128,
		Autoboot:          true,
		Tags:              map[string]any{"triton.placement.non_docker_nat_svc": true},
	}
	if err := m.Store.PutVM(nat); err != nil {
		return "", fmt.Errorf("fabric: persisting nat draft: %w", err)
	}

	natJob := &client.Job{UUID: workflow.NewPipelineID(), Name: "provision", Task: "provision", VMUUID: nat.UUID}
	natJC := &workflow.JobContext{
		Ctx:                 jc.Ctx,
		Job:                 natJob,
		VM:                  nat,
		Params:              map[string]interface{}{"network_refs": []string{fabricUUID}},
		Bundle:              m.Bundle,
		Waitlist:            m.Waitlist,
		Store:               m.Store,
		Tickets:             make(map[string]*client.Ticket),
		MarkAsFailedOnError: true,
	}

	// The NAT zone's own nic sits directly on the fabric; it never needs
	// a NAT of its own, so a no-op FabricLookup breaks the recursion.
	pipeline := workflow.ProvisionTemplate(&noopNAT{}, &noopFabric{}, workflow.Tuning{})
	outcome := pipeline.Run(natJC)
	if outcome.Err != nil {
		return "", fmt.Errorf("fabric: provisioning nat for %s: %w", fabricUUID, outcome.Err)
	}
	return nat.UUID, nil
}

// ReapIfOrphaned checks every fabric network nics referenced and, if
// ownerUUID has no other active VM left on that fabric, destroys its
// nat-<fabric> zone.
func (m *Manager) ReapIfOrphaned(ctx context.Context, ownerUUID string, nics []client.Nic) error {
	seen := map[string]bool{}
	for _, nic := range nics {
		if nic.NetworkUUID == "" || seen[nic.NetworkUUID] {
			continue
		}
		seen[nic.NetworkUUID] = true

		n, err := m.Bundle.NAPI.GetNetwork(ctx, nic.NetworkUUID)
		if err != nil || !n.Fabric || n.OwnerUUID != ownerUUID {
			continue
		}
		if m.ownerHasActiveNicOnFabric(ownerUUID, n.UUID) {
			continue
		}
		natVM := m.findActiveByAlias(ownerUUID, alias(n.UUID))
		if natVM == nil {
			continue
		}
		if err := m.destroyNAT(ctx, natVM); err != nil {
			return fmt.Errorf("fabric: reaping nat for %s: %w", n.UUID, err)
		}
	}
	return nil
}

func (m *Manager) destroyNAT(ctx context.Context, nat *client.VM) error {
	job := &client.Job{UUID: workflow.NewPipelineID(), Name: "destroy", Task: "destroy", VMUUID: nat.UUID}
	jc := &workflow.JobContext{
		Ctx:      ctx,
		Job:      job,
		VM:       nat,
		Params:   map[string]interface{}{},
		Bundle:   m.Bundle,
		Waitlist: m.Waitlist,
		Store:    m.Store,
		Tickets:  make(map[string]*client.Ticket),
	}
	pipeline := workflow.DestroyTemplate(workflow.Tuning{})
	outcome := pipeline.Run(jc)
	if outcome.Err != nil {
		return outcome.Err
	}
	return m.Store.PutVM(nat)
}

func (m *Manager) findActiveByAlias(ownerUUID, wantAlias string) *client.VM {
	res, err := m.Store.List(store.ListOptions{
		Filter: map[string]string{"owner_uuid": ownerUUID, "alias": wantAlias},
		Active: true,
	})
	if err != nil || len(res.VMs) == 0 {
		return nil
	}
	return res.VMs[0]
}

func (m *Manager) ownerHasActiveNicOnFabric(ownerUUID, fabricUUID string) bool {
	res, err := m.Store.List(store.ListOptions{Filter: map[string]string{"owner_uuid": ownerUUID}, Active: true})
	if err != nil {
		return false
	}
	for _, v := range res.VMs {
		if v.NicByNetwork(fabricUUID) != nil {
			return true
		}
	}
	return false
}

type noopNAT struct{}

func (*noopNAT) EnsureFabricNAT(jc *workflow.JobContext, fabricUUID, ownerUUID string) (string, error) {
	return "", fmt.Errorf("fabric: nat zones do not themselves get a nat")
}

type noopFabric struct{}

func (*noopFabric) OwnedFabric(jc *workflow.JobContext, networkRef, ownerUUID string) (string, bool, error) {
	return "", false, nil
}

var (
	_ workflow.NATProvisioner = (*Manager)(nil)
	_ workflow.FabricLookup   = (*Manager)(nil)
)
