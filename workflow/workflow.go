// Package workflow implements the Workflow Composer: a declarative
// pipeline-of-tasks model with retry/timeout/cancel/error branches, bound
// per mutation type and handed to an external executor (spec.md §4.3).
//
// It generalizes the teacher's config-driven Action/Pipeline/Stage model
// (one flat list of RPC stages per guest action) by giving every Task a
// Retry count and Timeout, and every Pipeline an OnError/OnCancel branch
// and a wall-clock Timeout — none of which the teacher's flat stage list
// had, and all of which spec.md requires.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/waitlist"
)

// JobContext is what every Task body receives: the collaborators bundle,
// the waitlist kernel, the VM draft being mutated, and the bound
// parameters for this pipeline run. It replaces the teacher's global
// Context-as-module-singleton (design note §9 item 3) with an explicit,
// per-run, dependency-injected value.
type JobContext struct {
	Ctx     context.Context
	Job      *client.Job
	VM       *client.VM
	Params   map[string]interface{}
	Bundle   *collaborators.Bundle
	Waitlist *waitlist.Kernel
	Store    Store

	// Tickets acquired so far in this run, released by the pipeline's
	// error/cancel branches or by explicit early-release task bodies
	// (e.g. migrate-begin releases its VM ticket after recording the
	// initial migration record).
	Tickets map[string]*client.Ticket

	// MarkAsFailedOnError controls whether the Reconciler cleans up
	// NAPI-side NICs on failure. It starts true and is flipped to false
	// by task bodies once physical zone creation has begun, per
	// spec.md §4.3's "point of no return" note.
	MarkAsFailedOnError bool
}

// Store is the subset of the VM Store this package needs: persisting
// in-progress VM state as pipeline tasks complete.
type Store interface {
	PutVM(v *client.VM) error
	GetVM(uuid string) (*client.VM, error)
	PutMigration(m *client.Migration) error
	GetMigration(vmUUID string) (*client.Migration, error)
}

// Task is one idempotent step of a Pipeline.
type Task struct {
	Name    string
	Timeout time.Duration
	Retry   int
	Body    func(jc *JobContext) error
}

// run executes a task's body with retry, honoring jc.Ctx cancellation.
func (t Task) run(jc *JobContext) error {
	attempts := t.Retry
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := jc.Ctx.Err(); err != nil {
			return err
		}

		taskCtx := jc.Ctx
		cancel := func() {}
		if t.Timeout > 0 {
			taskCtx, cancel = context.WithTimeout(jc.Ctx, t.Timeout)
		}
		inner := *jc
		inner.Ctx = taskCtx

		lastErr = t.Body(&inner)
		jc.MarkAsFailedOnError = inner.MarkAsFailedOnError
		cancel()

		if lastErr == nil {
			return nil
		}
		log.WithFields(log.Fields{"task": t.Name, "attempt": i + 1, "error": lastErr}).Warn("task attempt failed")
	}
	return fmt.Errorf("task %s: %w", t.Name, lastErr)
}

// Pipeline is an ordered sequence of tasks with error/cancel branches and
// an overall wall-clock timeout.
type Pipeline struct {
	ID       string
	Action   string
	Tasks    []Task
	OnError  []Task
	OnCancel []Task
	Timeout  time.Duration
}

// Outcome is the terminal result of running a Pipeline in-process (used by
// tests and by InProcessExecutor, which cmd/vmapi wires; WFAPIExecutor
// submits to WFAPI instead of calling Run — see Executor).
type Outcome struct {
	Execution client.JobExecution
	Err       error
}

// Run executes the pipeline's tasks in order, falling back to OnError on
// task failure or OnCancel if ctx is canceled mid-flight. All task bodies
// must be idempotent under Task.Retry, and OnError/OnCancel must always
// include whatever release tasks are needed to free tickets acquired
// earlier in Tasks (spec.md §4.4's release contract).
func (p *Pipeline) Run(jc *JobContext) Outcome {
	pipelineCtx := jc.Ctx
	cancel := func() {}
	if p.Timeout > 0 {
		pipelineCtx, cancel = context.WithTimeout(jc.Ctx, p.Timeout)
	}
	defer cancel()
	jc.Ctx = pipelineCtx

	for _, task := range p.Tasks {
		err := task.run(jc)
		if err == nil {
			continue
		}

		if pipelineCtx.Err() != nil && len(p.OnCancel) > 0 {
			runBranch(jc, p.OnCancel, "oncancel")
			return Outcome{Execution: client.JobCanceled, Err: err}
		}

		runBranch(jc, p.OnError, "onerror")
		return Outcome{Execution: client.JobFailed, Err: err}
	}

	return Outcome{Execution: client.JobSucceeded}
}

func runBranch(jc *JobContext, tasks []Task, branch string) {
	// Error/cancel branches run with a fresh, un-timed-out context:
	// cleanup (releasing tickets, cleaning up NICs) must be allowed to
	// finish even if the pipeline's own wall clock has expired.
	cleanup := *jc
	cleanup.Ctx = context.Background()
	for _, task := range tasks {
		if err := task.run(&cleanup); err != nil {
			log.WithFields(log.Fields{"branch": branch, "task": task.Name, "error": err}).Error("cleanup task failed")
		}
	}
}

// NewPipelineID returns a fresh pipeline/job identifier.
func NewPipelineID() string {
	return uuid.NewString()
}
