package workflow

import "time"

// Tuning carries the operator-configured overrides for one pipeline
// template's timeouts and retry count (config.PipelineTuning), falling
// back to the template's own defaults when unset.
type Tuning struct {
	Timeout     time.Duration
	TaskTimeout time.Duration
	TaskRetry   int
}

func (t Tuning) timeoutOr(d time.Duration) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return d
}

func (t Tuning) taskTimeoutOr(d time.Duration) time.Duration {
	if t.TaskTimeout > 0 {
		return t.TaskTimeout
	}
	return d
}

func (t Tuning) retryOr(d int) int {
	if t.TaskRetry > 0 {
		return t.TaskRetry
	}
	return d
}
