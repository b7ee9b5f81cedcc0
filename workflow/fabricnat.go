package workflow

import (
	"fmt"
	"time"
)

// NATProvisioner ensures a fabric's dedicated NAT zone exists and is
// running, provisioning one (under its own allocation ticket, to avoid a
// duplicate provision racing a concurrent caller) if absent. It is
// satisfied by the composition root, which wires it back to a "provision"
// pipeline run for the synthetic `nat-<fabric>` VM — see spec.md §4.3's
// fabric-NAT sub-pipeline.
type NATProvisioner interface {
	EnsureFabricNAT(jc *JobContext, fabricUUID, ownerUUID string) (vmUUID string, err error)
}

// FabricLookup resolves whether a network reference is a fabric network
// owned by ownerUUID, returning its uuid if so.
type FabricLookup interface {
	OwnedFabric(jc *JobContext, networkRef, ownerUUID string) (fabricUUID string, isFabric bool, err error)
}

// fabricNATTasks returns the sub-pipeline spliced into provision and
// add-nics: for every bound network that is a fabric owned by the VM's
// owner, ensure a NAT zone for that fabric exists before the parent
// pipeline continues.
func fabricNATTasks(nat NATProvisioner, fabrics FabricLookup, networkRefs func(jc *JobContext) []string) []Task {
	return []Task{
		{
			Name:    "fabricnat.ensure",
			Timeout: 600 * time.Second,
			Retry:   2,
			Body: func(jc *JobContext) error {
				for _, ref := range networkRefs(jc) {
					fabricUUID, isFabric, err := fabrics.OwnedFabric(jc, ref, jc.VM.OwnerUUID)
					if err != nil {
						return fmt.Errorf("fabricnat: resolving %q: %w", ref, err)
					}
					if !isFabric {
						continue
					}
					if _, err := nat.EnsureFabricNAT(jc, fabricUUID, jc.VM.OwnerUUID); err != nil {
						return fmt.Errorf("fabricnat: ensuring NAT for fabric %s: %w", fabricUUID, err)
					}
				}
				return nil
			},
		},
	}
}
