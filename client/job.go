package client

import "time"

// JobExecution is the execution state of a Job, owned by the workflow
// executor; the core only reads and correlates.
type JobExecution string

const (
	JobQueued    JobExecution = "queued"
	JobRunning   JobExecution = "running"
	JobSucceeded JobExecution = "succeeded"
	JobFailed    JobExecution = "failed"
	JobCanceled  JobExecution = "canceled"
)

// CallerContext identifies who triggered a Job, propagated from the
// gateway's x-context header through to the job record so audit queries
// can recover the original caller (spec.md P1).
type CallerContext struct {
	Type  string `json:"type"`
	IP    string `json:"ip,omitempty"`
	KeyID string `json:"keyId,omitempty"`
}

// JobParams is the params envelope stored with every Job.
type JobParams struct {
	Context struct {
		Caller CallerContext `json:"caller"`
		Params map[string]any `json:"params,omitempty"`
	} `json:"context"`
	Task   string         `json:"task,omitempty"`
	Extra  map[string]any `json:"-"`
}

// Job is the append-only (from the core's perspective) record of a
// submitted mutation.
type Job struct {
	UUID      string       `json:"uuid"`
	Name      string       `json:"name"`
	Execution JobExecution `json:"execution"`
	Params    JobParams    `json:"params"`
	VMUUID    string       `json:"vm_uuid,omitempty"`
	Task      string       `json:"task"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Error     string       `json:"error,omitempty"`
}

// Terminal reports whether the job has reached a final execution state.
func (j *Job) Terminal() bool {
	switch j.Execution {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	default:
		return false
	}
}
