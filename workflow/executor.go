package workflow

import (
	"context"

	"github.com/Smithx10/sdc-vmapi/collaborators"
)

// Executor is the external workflow engine the Composer hands pipelines
// to. The Composer never runs a Pipeline's tasks itself — it only
// composes and submits, per spec.md §4.3's "Composer's contract with the
// executor". Pipeline.Run is what tests and InProcessExecutor (the
// executor cmd/vmapi wires) use to run a Pipeline without WFAPI.
type Executor interface {
	Submit(ctx context.Context, name string, jc *JobContext, p *Pipeline) (jobUUID string, err error)
}

// WFAPIExecutor submits pipelines to a real WFAPI endpoint and returns
// immediately with the job id WFAPI assigns; it does not run the pipeline
// in-process.
type WFAPIExecutor struct {
	WFAPI *collaborators.WFAPIClient
}

// Submit hands the pipeline's bound parameters to WFAPI as a named
// workflow job.
func (e *WFAPIExecutor) Submit(ctx context.Context, name string, jc *JobContext, p *Pipeline) (string, error) {
	result, err := e.WFAPI.Submit(ctx, collaborators.WorkflowJob{
		WorkflowName: name,
		Params:       jc.Params,
	})
	if err != nil {
		return "", err
	}
	return result.JobUUID, nil
}

// InProcessExecutor runs a Pipeline's tasks directly, synchronously in a
// goroutine, updating onDone with the terminal Outcome. It is the
// executor cmd/vmapi wires; WFAPIExecutor is the alternative for a
// deployment with a separate WFAPI.
type InProcessExecutor struct {
	OnDone func(jobUUID string, outcome Outcome, jc *JobContext)
}

// Submit runs p.Run in a new goroutine and reports the result via
// e.OnDone once the pipeline reaches a terminal state.
func (e *InProcessExecutor) Submit(ctx context.Context, name string, jc *JobContext, p *Pipeline) (string, error) {
	jobUUID := NewPipelineID()
	go func() {
		outcome := p.Run(jc)
		if e.OnDone != nil {
			e.OnDone(jobUUID, outcome, jc)
		}
	}()
	return jobUUID, nil
}

var _ Executor = (*WFAPIExecutor)(nil)
var _ Executor = (*InProcessExecutor)(nil)
