package workflow

import (
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
)

func targetServerUUID(jc *JobContext) string {
	s, _ := jc.Params["target_server_uuid"].(string)
	return s
}

// MigrateBeginTemplate builds the migrate-begin pipeline: picks up the
// allocation ticket for the target server, records the migration, and
// releases the VM ticket early so other operations on the VM are not
// blocked for the full duration of the transfer — sync and switch
// reacquire it as needed.
func MigrateBeginTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "migrate_begin",
		Timeout: tuning.timeoutOr(600 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			acquireAllocationTicket(targetServerUUID),
			{
				Name:    "cnapi.migrate_begin",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
				Retry:   tuning.retryOr(2),
				Body: func(jc *JobContext) error {
					target := targetServerUUID(jc)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "migrate_begin", map[string]interface{}{"target_server_uuid": target})
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
					jc.VM.State = client.StateMigrating
					return nil
				},
			},
			releaseAllocationTicket(),
			persistVM(),
			{
				Name: "store.put_migration",
				Body: func(jc *JobContext) error {
					return jc.Store.PutMigration(&client.Migration{
						VMUUID:           jc.VM.UUID,
						SourceServerUUID: jc.VM.ServerUUID,
						TargetServerUUID: targetServerUUID(jc),
						State:            client.MigrationRunning,
					})
				},
			},
			// The VM ticket is released here, not at the end of the
			// pipeline: migrate-sync runs as its own job and reacquires
			// it, per spec.md §4.3.
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket(), releaseAllocationTicket()},
		OnCancel: []Task{releaseVMTicket(), releaseAllocationTicket()},
	}
}

// MigrateSyncTemplate builds the migrate-sync pipeline: one incremental
// transfer pass, repeatable by the caller until they're ready to switch.
func MigrateSyncTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "migrate_sync",
		Timeout: tuning.timeoutOr(1800 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name:    "store.get_migration",
				Timeout: tuning.taskTimeoutOr(10 * time.Second),
				Body: func(jc *JobContext) error {
					m, err := jc.Store.GetMigration(jc.VM.UUID)
					if err != nil {
						return err
					}
					jc.Params["_migration"] = m
					return nil
				},
			},
			{
				Name:    "cnapi.migrate_sync",
				Timeout: tuning.taskTimeoutOr(1800 * time.Second),
				Retry:   1,
				Body: func(jc *JobContext) error {
					m, _ := jc.Params["_migration"].(*client.Migration)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "migrate_sync", map[string]interface{}{"target_server_uuid": m.TargetServerUUID})
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
				Name: "store.put_migration",
				Body: func(jc *JobContext) error {
					m, _ := jc.Params["_migration"].(*client.Migration)
					m.SyncCount++
					return jc.Store.PutMigration(m)
				},
			},
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket()},
		OnCancel: []Task{releaseVMTicket()},
	}
}

// MigrateSwitchTemplate builds the migrate-switch pipeline: the final cut
// over to the target server. On success the VM record's server_uuid
// changes and the migration closes out; on failure the VM remains on the
// source server and the migration is marked failed, not aborted silently.
func MigrateSwitchTemplate(tuning Tuning) *Pipeline {
	markFailed := Task{
		Name: "store.mark_migration_failed",
		Body: func(jc *JobContext) error {
			m, _ := jc.Params["_migration"].(*client.Migration)
			if m == nil || m.State == client.MigrationFailed {
				return nil
			}
			m.State = client.MigrationFailed
			return jc.Store.PutMigration(m)
		},
	}
	return &Pipeline{
		Action:  "migrate_switch",
		Timeout: tuning.timeoutOr(600 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name: "store.get_migration",
				Body: func(jc *JobContext) error {
					m, err := jc.Store.GetMigration(jc.VM.UUID)
					if err != nil {
						return err
					}
					jc.Params["_migration"] = m
					return nil
				},
			},
			acquireAllocationTicket(func(jc *JobContext) string {
				m, _ := jc.Params["_migration"].(*client.Migration)
				if m == nil {
					return ""
				}
				return m.TargetServerUUID
			}),
			{
				Name:    "cnapi.migrate_switch",
				Timeout: tuning.taskTimeoutOr(300 * time.Second),
				Retry:   1,
				Body: func(jc *JobContext) error {
					m, _ := jc.Params["_migration"].(*client.Migration)
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "migrate_switch", map[string]interface{}{"target_server_uuid": m.TargetServerUUID})
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
					m, _ := jc.Params["_migration"].(*client.Migration)
					if status.Status == "failure" {
						m.State = client.MigrationFailed
						m.Error = status.Error
						_ = jc.Store.PutMigration(m)
						return fmt.Errorf("cnapi task %s failed: %s", taskID, status.Error)
					}
					jc.VM.ServerUUID = m.TargetServerUUID
					jc.VM.State = client.StateRunning
					m.State = client.MigrationSwitched
					jc.Params["_migration"] = m
					return nil
				},
			},
			persistVM(),
			{
				Name: "store.put_migration",
				Body: func(jc *JobContext) error {
					m, _ := jc.Params["_migration"].(*client.Migration)
					return jc.Store.PutMigration(m)
				},
			},
			releaseVMTicket(),
			releaseAllocationTicket(),
		},
		OnError:  []Task{markFailed, releaseVMTicket(), releaseAllocationTicket()},
		OnCancel: []Task{markFailed, releaseVMTicket(), releaseAllocationTicket()},
	}
}
