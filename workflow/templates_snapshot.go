package workflow

import (
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
)

func snapshotName(jc *JobContext) string {
	name, _ := jc.Params["snapshot_name"].(string)
	return name
}

// CreateSnapshotTemplate builds the create-snapshot pipeline.
func CreateSnapshotTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "create_snapshot",
		Timeout: tuning.timeoutOr(300 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.create_snapshot",
				Timeout: tuning.taskTimeoutOr(120 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					name := snapshotName(jc)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "create_snapshot", map[string]interface{}{"name": name})
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
					jc.VM.Snapshots = append(jc.VM.Snapshots, client.Snapshot{
						Name:  snapshotName(jc),
						State: "created",
					})
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

// RollbackSnapshotTemplate builds the rollback-snapshot pipeline: the VM
// reverts to the snapshotted disk state and returns to "running".
func RollbackSnapshotTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "rollback_snapshot",
		Timeout: tuning.timeoutOr(300 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.rollback_snapshot",
				Timeout: tuning.taskTimeoutOr(180 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "rollback_snapshot", map[string]interface{}{"name": snapshotName(jc)})
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
					jc.VM.State = client.StateRunning
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

// DeleteSnapshotTemplate builds the delete-snapshot pipeline.
func DeleteSnapshotTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "delete_snapshot",
		Timeout: tuning.timeoutOr(180 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "cnapi.delete_snapshot",
				Timeout: tuning.taskTimeoutOr(60 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "delete_snapshot", map[string]interface{}{"name": snapshotName(jc)})
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
					name := snapshotName(jc)
					remaining := make([]client.Snapshot, 0, len(jc.VM.Snapshots))
					for _, s := range jc.VM.Snapshots {
						if s.Name != name {
							remaining = append(remaining, s)
						}
					}
					jc.VM.Snapshots = remaining
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

// ReprovisionTemplate builds the reprovision pipeline: swap the zone's
// image in place, keeping uuid/nics/disks. Failure here does not mark the
// VM destroyed; the zone survives with its previous image intact.
func ReprovisionTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "reprovision",
		Timeout: tuning.timeoutOr(1800 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "imgapi.ensure_image",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					imageUUID, _ := jc.Params["image_uuid"].(string)
					img, err := jc.Bundle.IMGAPI.GetImage(jc.Ctx, imageUUID)
					if err != nil {
						return err
					}
					if img.State != "active" {
						return fmt.Errorf("reprovision: image %s is %s, not active", imageUUID, img.State)
					}
					if _, err := jc.Bundle.IMGAPI.EnsureOnServer(jc.Ctx, imageUUID, jc.VM.ServerUUID); err != nil {
						return err
					}
					jc.Params["_image_uuid"] = imageUUID
					return nil
				},
			},
			{
				Name:    "cnapi.reprovision",
				Timeout: tuning.taskTimeoutOr(1200 * time.Second),
				Retry:   1,
				Body: func(jc *JobContext) error {
					imageUUID, _ := jc.Params["_image_uuid"].(string)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "reprovision", map[string]interface{}{"image_uuid": imageUUID})
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
					if imageUUID, _ := jc.Params["_image_uuid"].(string); imageUUID != "" {
						jc.VM.ImageUUID = imageUUID
					}
					jc.VM.State = client.StateRunning
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
