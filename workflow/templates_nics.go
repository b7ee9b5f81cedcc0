package workflow

import (
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
)

// nicRequests pulls the pending NIC creation requests bound onto the
// pipeline params by the gateway from the validated add_nics networks
// (one per network reference in the call).
func nicRequests(jc *JobContext) []collaborators.CreateNicRequest {
	reqs, _ := jc.Params["nic_requests"].([]collaborators.CreateNicRequest)
	return reqs
}

func addNicsNetworkRefs(jc *JobContext) []string {
	refs, _ := jc.Params["network_refs"].([]string)
	return refs
}

// AddNicsTemplate builds the add-nics pipeline: fabric-NAT sub-pipeline for
// any newly bound fabric network, reserve NICs in NAPI, hand the CN the
// updated nic list, verify, persist, resync firewall rules. On error the
// NICs NAPI already created are released (spec.md §4.3's explicit
// add-nics error contract), mirroring the destroy pipeline's cleanup.
func AddNicsTemplate(nat NATProvisioner, fabrics FabricLookup, tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "add_nics",
		Timeout: tuning.timeoutOr(600 * time.Second),
		Tasks: append(append([]Task{
			acquireVMTicket(),
		}, fabricNATTasks(nat, fabrics, addNicsNetworkRefs)...), []Task{
			{
				Name:    "napi.create_nics",
				Timeout: tuning.taskTimeoutOr(60 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					created := make([]string, 0)
					for _, req := range nicRequests(jc) {
						nic, err := jc.Bundle.NAPI.CreateNic(jc.Ctx, req)
						if err != nil {
							jc.Params["_created_macs"] = created
							return fmt.Errorf("napi.create_nics: %w", err)
						}
						jc.VM.Nics = append(jc.VM.Nics, *nic)
						created = append(created, nic.MAC)
					}
					jc.Params["_created_macs"] = created
					return nil
				},
			},
			{
				Name:    "cnapi.update_nics",
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "update_nics", map[string]interface{}{"nics": jc.VM.Nics})
					if err != nil {
						return err
					}
					jc.Params["_task"] = t.TaskID
					return nil
				},
			},
			{
				Name: "cnapi.wait_task",
				Body: func(jc *JobContext) error {
					taskID, _ := jc.Params["_task"].(string)
					status, err := jc.Bundle.CNAPI.WaitTask(jc.Ctx, taskID)
					if err != nil {
						return err
					}
					if status.Status == "failure" {
						return fmt.Errorf("cnapi task %s failed: %s", taskID, status.Error)
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
			releaseVMTicket(),
		}...),
		OnError:  []Task{cleanupCreatedNics(), releaseVMTicket()},
		OnCancel: []Task{cleanupCreatedNics(), releaseVMTicket()},
	}
}

// cleanupCreatedNics returns a task that removes any NIC records this run
// created in NAPI before the failure, so a retried add_nics doesn't
// collide with orphaned reservations.
func cleanupCreatedNics() Task {
	return Task{
		Name: "napi.cleanup_created_nics",
		Body: func(jc *JobContext) error {
			macs, _ := jc.Params["_created_macs"].([]string)
			var firstErr error
			for _, mac := range macs {
				if err := jc.Bundle.NAPI.DeleteNic(jc.Ctx, mac); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}
}

// RemoveNicsTemplate builds the remove-nics pipeline: tell the CN to drop
// the interfaces, then release the NAPI records.
func RemoveNicsTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "remove_nics",
		Timeout: tuning.timeoutOr(300 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.remove_nics",
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					macs, _ := jc.Params["macs"].([]string)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "remove_nics", map[string]interface{}{"macs": macs})
					if err != nil {
						return err
					}
					jc.Params["_task"] = t.TaskID
					return nil
				},
			},
			{
				Name: "cnapi.wait_task",
				Body: func(jc *JobContext) error {
					taskID, _ := jc.Params["_task"].(string)
					status, err := jc.Bundle.CNAPI.WaitTask(jc.Ctx, taskID)
					if err != nil {
						return err
					}
					if status.Status == "failure" {
						return fmt.Errorf("cnapi task %s failed: %s", taskID, status.Error)
					}
					return nil
				},
			},
			{
				Name:    "napi.delete_nics",
				Timeout: tuning.taskTimeoutOr(30 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					macs, _ := jc.Params["macs"].([]string)
					remaining := make([]client.Nic, 0, len(jc.VM.Nics))
					removed := map[string]bool{}
					for _, m := range macs {
						removed[m] = true
					}
					for _, nic := range jc.VM.Nics {
						if removed[nic.MAC] {
							if err := jc.Bundle.NAPI.DeleteNic(jc.Ctx, nic.MAC); err != nil {
								return err
							}
							continue
						}
						remaining = append(remaining, nic)
					}
					jc.VM.Nics = remaining
					return nil
				},
			},
			persistVM(),
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket()},
		OnCancel: []Task{releaseVMTicket()},
	}
}
