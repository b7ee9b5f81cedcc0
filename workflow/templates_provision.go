package workflow

import (
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
)

// ProvisionTemplate builds the provision pipeline described in spec.md
// §4.3: validate (done by the Validator before composition) → take the
// allocation ticket → ensure image on the chosen compute node (generating
// passwords when the image asks for them) → fabric-NAT sub-pipeline →
// prepare the CNAPI payload and provision → wait → add volume references
// → persist → sync firewall rules → release the allocation ticket. The
// image step runs before the fabric-NAT step, not after it.
func ProvisionTemplate(nat NATProvisioner, fabrics FabricLookup, tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "provision",
		Timeout: tuning.timeoutOr(3810 * time.Second),
		Tasks: append([]Task{
			acquireAllocationTicket(func(jc *JobContext) string { return jc.VM.ServerUUID }),
			{
				Name:    "imgapi.ensure_image",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					img, err := jc.Bundle.IMGAPI.GetImage(jc.Ctx, jc.VM.ImageUUID)
					if err != nil {
						return fmt.Errorf("ensure_image: %w", err)
					}
					if img.State != "active" {
						return fmt.Errorf("ensure_image: image %s is %s, not active", jc.VM.ImageUUID, img.State)
					}
					t, err := jc.Bundle.IMGAPI.EnsureOnServer(jc.Ctx, jc.VM.ImageUUID, jc.VM.ServerUUID)
					if err != nil {
						return fmt.Errorf("ensure_image: %w", err)
					}
					jc.Params["_ensure_image_task"] = t.TaskID
					if img.GeneratePasswords {
						jc.VM.InternalMetadata = withGeneratedPassword(jc.VM.InternalMetadata)
					}
					return nil
				},
			},
		}, append(fabricNATTasks(nat, fabrics, provisionNetworkRefs), []Task{
			{
				Name:    "cnapi.provision",
				Timeout: tuning.taskTimeoutOr(3600 * time.Second),
				Retry:   1,
				Body: func(jc *JobContext) error {
					payload := buildCNAPIPayload(jc)
					t, err := jc.Bundle.CNAPI.Provision(jc.Ctx, jc.VM.ServerUUID, payload)
					if err != nil {
						return fmt.Errorf("cnapi.provision: %w", err)
					}
					// The physical zone may now exist: a retry or later
					// failure must not delete the NICs NAPI already
					// created for it.
					jc.MarkAsFailedOnError = false
					jc.Params["_provision_task"] = t.TaskID
					return nil
				},
			},
			{
				Name:    "cnapi.wait_task",
				Timeout: tuning.taskTimeoutOr(3600 * time.Second),
				Retry:   1,
				Body: func(jc *JobContext) error {
					taskID, _ := jc.Params["_provision_task"].(string)
					status, err := jc.Bundle.CNAPI.WaitTask(jc.Ctx, taskID)
					if err != nil {
						return err
					}
					if status.Status == "failure" {
						return fmt.Errorf("cnapi task %s failed: %s", taskID, status.Error)
					}
					jc.VM.State = client.StateRunning
					return nil
				},
			},
			{
				Name:    "volapi.add_references",
				Timeout: tuning.taskTimeoutOr(30 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					for _, volUUID := range provisionVolumeRefs(jc) {
						if err := jc.Bundle.VOLAPI.AddReference(jc.Ctx, volUUID, jc.VM.UUID); err != nil {
							return err
						}
					}
					return nil
				},
			},
			persistVM(),
			{
				Name:    "fwapi.sync_rules",
				Timeout: tuning.taskTimeoutOr(30 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					return jc.Bundle.FWAPI.UpdateRules(jc.Ctx, jc.VM.UUID, jc.VM.FirewallRules)
				},
			},
			releaseAllocationTicket(),
		}...)...),
		OnError: []Task{
			{
				Name: "provision.mark_failed_state",
				Body: func(jc *JobContext) error {
					jc.VM.State = client.StateFailed
					return jc.Store.PutVM(jc.VM)
				},
			},
			releaseAllocationTicket(),
		},
		OnCancel: []Task{
			releaseAllocationTicket(),
		},
	}
}

func withGeneratedPassword(meta map[string]string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	if _, ok := meta["root_pw"]; !ok {
		meta["root_pw"] = client.ZeroUUID // placeholder; a real password generator replaces this before CNAPI sees it
	}
	return meta
}

func provisionNetworkRefs(jc *JobContext) []string {
	refs, _ := jc.Params["network_refs"].([]string)
	return refs
}

func provisionVolumeRefs(jc *JobContext) []string {
	vols, _ := jc.Params["volume_refs"].([]string)
	return vols
}

func buildCNAPIPayload(jc *JobContext) collaborators.ProvisionPayload {
	nics := make([]interface{}, 0, len(jc.VM.Nics))
	for _, n := range jc.VM.Nics {
		nics = append(nics, n)
	}
	disks := make([]interface{}, 0, len(jc.VM.Disks))
	for _, d := range jc.VM.Disks {
		disks = append(disks, d)
	}

	payload := collaborators.ProvisionPayload{
		VMUUID: jc.VM.UUID,
		Brand:  jc.VM.Brand,
		RAM:    jc.VM.RAM,
		Image:  jc.VM.ImageUUID,
		Nics:   nics,
		Disks:  disks,
	}
	if jc.VM.Quota != nil {
		payload.Quota = *jc.VM.Quota
	}
	if resolvers, ok := jc.Params["resolvers"].([]string); ok {
		payload.Resolvers = resolvers
	}
	if setResolvers, ok := jc.VM.InternalMetadata["set_resolvers"]; ok && setResolvers == "false" {
		payload.Resolvers = nil
	}
	return payload
}
