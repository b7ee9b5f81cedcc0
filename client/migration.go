package client

import "time"

// MigrationState is the lifecycle state of a VM migration record.
type MigrationState string

const (
	MigrationRunning  MigrationState = "running"
	MigrationPaused   MigrationState = "paused"
	MigrationSwitched MigrationState = "switched"
	MigrationFailed   MigrationState = "failed"
	MigrationAborted  MigrationState = "aborted"
)

// Migration tracks a VM's move from SourceServerUUID to TargetServerUUID
// across the begin/sync/switch pipeline sequence (spec.md §4.3). The VM
// ticket is released after begin records the target so other operations
// on the VM aren't blocked for the whole, possibly long-running, transfer.
type Migration struct {
	VMUUID           string         `json:"vm_uuid"`
	SourceServerUUID string         `json:"source_server_uuid"`
	TargetServerUUID string         `json:"target_server_uuid"`
	State            MigrationState `json:"state"`
	SyncCount        int            `json:"sync_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Error            string         `json:"error,omitempty"`
}
