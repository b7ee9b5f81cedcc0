package collaborators

import "context"

// WFAPIClient talks to the external workflow executor: submitting a
// composed pipeline for execution and polling its progress. The composer
// never runs pipeline tasks itself (spec.md §4.3) — this is the only
// boundary it crosses to make that true.
type WFAPIClient struct{ *baseClient }

// NewWFAPIClient builds a WFAPIClient bound to rawurl.
func NewWFAPIClient(rawurl string) (*WFAPIClient, error) {
	base, err := newBaseClient("wfapi", rawurl)
	if err != nil {
		return nil, err
	}
	return &WFAPIClient{base}, nil
}

// WorkflowJob is the wire shape submitted to WFAPI: a named template plus
// the bound parameters for this run.
type WorkflowJob struct {
	WorkflowName string                 `json:"workflow_name"`
	Params       map[string]interface{} `json:"params"`
}

// SubmitResult is returned by WFAPI on acceptance.
type SubmitResult struct {
	JobUUID string `json:"job_uuid"`
}

// Submit hands a composed pipeline off to the executor.
func (c *WFAPIClient) Submit(ctx context.Context, job WorkflowJob) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, "POST", "/jobs", nil, job, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// JobStatus is the polled execution state of a submitted job.
type JobStatus struct {
	UUID      string `json:"uuid"`
	Execution string `json:"execution"` // queued, running, succeeded, failed, canceled
	Error     string `json:"error,omitempty"`
}

// GetJob polls a job's current execution state.
func (c *WFAPIClient) GetJob(ctx context.Context, jobUUID string) (*JobStatus, error) {
	var js JobStatus
	if err := c.do(ctx, "GET", "/jobs/"+jobUUID, nil, nil, &js); err != nil {
		return nil, err
	}
	return &js, nil
}

// CancelJob requests cancellation of an in-flight job.
func (c *WFAPIClient) CancelJob(ctx context.Context, jobUUID string) error {
	return c.do(ctx, "POST", "/jobs/"+jobUUID+"/cancel", nil, nil, nil)
}
