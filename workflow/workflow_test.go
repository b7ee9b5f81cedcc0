package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Smithx10/sdc-vmapi/client"
)

func newTestJC() *JobContext {
	return &JobContext{
		Ctx:     context.Background(),
		Job:     &client.Job{UUID: "job-1"},
		VM:      &client.VM{UUID: "vm-1"},
		Params:  map[string]interface{}{},
		Tickets: map[string]*client.Ticket{},
	}
}

func TestPipelineRunSucceeds(t *testing.T) {
	var ran []string
	p := &Pipeline{
		Tasks: []Task{
			{Name: "a", Body: func(jc *JobContext) error { ran = append(ran, "a"); return nil }},
			{Name: "b", Body: func(jc *JobContext) error { ran = append(ran, "b"); return nil }},
		},
	}
	outcome := p.Run(newTestJC())
	require.Equal(t, client.JobSucceeded, outcome.Execution)
	require.NoError(t, outcome.Err)
	require.Equal(t, []string{"a", "b"}, ran)
}

func TestPipelineRunFailureRunsOnError(t *testing.T) {
	var cleaned bool
	p := &Pipeline{
		Tasks: []Task{
			{Name: "boom", Body: func(jc *JobContext) error { return errors.New("boom") }},
		},
		OnError: []Task{
			{Name: "cleanup", Body: func(jc *JobContext) error { cleaned = true; return nil }},
		},
	}
	outcome := p.Run(newTestJC())
	require.Equal(t, client.JobFailed, outcome.Execution)
	require.Error(t, outcome.Err)
	require.True(t, cleaned)
}

func TestPipelineRunStopsAfterFirstFailure(t *testing.T) {
	var ran []string
	p := &Pipeline{
		Tasks: []Task{
			{Name: "a", Body: func(jc *JobContext) error { ran = append(ran, "a"); return errors.New("fail") }},
			{Name: "b", Body: func(jc *JobContext) error { ran = append(ran, "b"); return nil }},
		},
	}
	p.Run(newTestJC())
	require.Equal(t, []string{"a"}, ran)
}

func TestPipelineRunTimeoutRunsOnCancel(t *testing.T) {
	var canceled bool
	p := &Pipeline{
		Timeout: 10 * time.Millisecond,
		Tasks: []Task{
			{Name: "slow", Body: func(jc *JobContext) error {
				<-jc.Ctx.Done()
				return jc.Ctx.Err()
			}},
		},
		OnCancel: []Task{
			{Name: "cleanup", Body: func(jc *JobContext) error { canceled = true; return nil }},
		},
	}
	outcome := p.Run(newTestJC())
	require.Equal(t, client.JobCanceled, outcome.Execution)
	require.True(t, canceled)
}

func TestTaskRunRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	task := Task{Name: "flaky", Retry: 3, Body: func(jc *JobContext) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}}
	require.NoError(t, task.run(newTestJC()))
	require.Equal(t, 3, attempts)
}

func TestTaskRunExhaustsRetries(t *testing.T) {
	attempts := 0
	task := Task{Name: "always-fails", Retry: 2, Body: func(jc *JobContext) error {
		attempts++
		return errors.New("nope")
	}}
	err := task.run(newTestJC())
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestRunBranchSurvivesParentTimeout(t *testing.T) {
	jc := newTestJC()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	jc.Ctx = ctx
	defer cancel()
	time.Sleep(time.Millisecond)

	var ran bool
	runBranch(jc, []Task{
		{Name: "cleanup", Body: func(jc *JobContext) error { ran = true; return nil }},
	}, "onerror")
	require.True(t, ran)
}
