package workflow

import (
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
)

// cnapiAction builds the common shape of start/stop/reboot: acquire the
// VM ticket, ask CNAPI to perform the action, wait for it, persist the
// resulting state, release the ticket.
func cnapiAction(action string, targetState string, tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  action,
		Timeout: tuning.timeoutOr(600 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi." + action,
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, action, nil)
					if err != nil {
						return err
					}
					jc.Params["_task"] = t.TaskID
					return nil
				},
			},
			{
				Name:    "cnapi.wait_task",
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Body: func(jc *JobContext) error {
					taskID, _ := jc.Params["_task"].(string)
					status, err := jc.Bundle.CNAPI.WaitTask(jc.Ctx, taskID)
					if err != nil {
						return err
					}
					if status.Status == "failure" {
						return fmt.Errorf("cnapi task %s failed: %s", taskID, status.Error)
					}
					if targetState != "" {
						jc.VM.State = targetState
					}
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

// StartTemplate builds the start pipeline.
func StartTemplate(tuning Tuning) *Pipeline { return cnapiAction("start", client.StateRunning, tuning) }

// StopTemplate builds the stop pipeline.
func StopTemplate(tuning Tuning) *Pipeline { return cnapiAction("stop", client.StateStopped, tuning) }

// RebootTemplate builds the reboot pipeline. Reboot does not change the
// persisted state (it stays "running" throughout).
func RebootTemplate(tuning Tuning) *Pipeline { return cnapiAction("reboot", "", tuning) }

// DestroyTemplate builds the destroy pipeline: terminal regardless of the
// VM's current state (spec.md §4.3's lifecycle graph — "any-but-destroyed
// --destroy--> destroyed").
func DestroyTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "destroy",
		Timeout: tuning.timeoutOr(600 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.destroy",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "destroy", nil)
					if err != nil {
						return err
					}
					jc.Params["_task"] = t.TaskID
					return nil
				},
			},
			{
				Name:    "cnapi.wait_task",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
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
				Name:    "napi.release_nics",
				Timeout: tuning.taskTimeoutOr(30 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					// Stashed for the Reconciler's fabric-NAT reaper
					// (spec.md §4.3: "the NAT zone lifecycle mirrors the
					// fabric's last dependent VM"), taken before the nics
					// are cleared below.
					jc.Params["_destroyed_nics"] = append([]client.Nic(nil), jc.VM.Nics...)
					jc.Params["_destroyed_owner"] = jc.VM.OwnerUUID
					for _, nic := range jc.VM.Nics {
						if err := jc.Bundle.NAPI.DeleteNic(jc.Ctx, nic.MAC); err != nil {
							return err
						}
					}
					jc.VM.Nics = nil
					return nil
				},
			},
			{
				Name: "store.mark_destroyed",
				Body: func(jc *JobContext) error {
					jc.VM.State = client.StateDestroyed
					jc.VM.Quota = nil // spec.md Open Question 1: quota is unknown after teardown, not zero
					return jc.Store.PutVM(jc.VM)
				},
			},
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket()},
		OnCancel: []Task{releaseVMTicket()},
	}
}

// UpdateTemplate builds the update pipeline: billing_id/autoboot/tags/etc.
// Resize-up capacity has already been checked by the Validator before
// composition; this pipeline only applies the change.
func UpdateTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "update",
		Timeout: tuning.timeoutOr(300 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.update",
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "update", jc.Params)
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
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket()},
		OnCancel: []Task{releaseVMTicket()},
	}
}
