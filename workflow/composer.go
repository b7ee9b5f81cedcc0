package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/Smithx10/sdc-vmapi/client"
	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/config"
	"github.com/Smithx10/sdc-vmapi/waitlist"
)

// Composer selects and binds a pipeline template for a named action,
// mirroring the teacher's Action.GeneratePipeline but dispatching over a
// registry of templates instead of a single config-driven stage list.
type Composer struct {
	Bundle   *collaborators.Bundle
	Waitlist *waitlist.Kernel
	Store    Store
	Executor Executor
	Tuning   map[string]config.PipelineTuning

	NAT     NATProvisioner
	Fabrics FabricLookup
}

// pipelineFor builds a fresh *Pipeline for action, pulling any
// operator-configured tuning override.
func (c *Composer) pipelineFor(action string) (*Pipeline, error) {
	t := Tuning{}
	if pt, ok := c.Tuning[action]; ok {
		t = Tuning{Timeout: pt.Timeout, TaskTimeout: pt.TaskTimeout, TaskRetry: pt.TaskRetry}
	}

	switch action {
	case "provision":
		return ProvisionTemplate(c.NAT, c.Fabrics, t), nil
	case "start":
		return StartTemplate(t), nil
	case "stop":
		return StopTemplate(t), nil
	case "reboot":
		return RebootTemplate(t), nil
	case "destroy":
		return DestroyTemplate(t), nil
	case "update":
		return UpdateTemplate(t), nil
	case "add_nics":
		return AddNicsTemplate(c.NAT, c.Fabrics, t), nil
	case "remove_nics":
		return RemoveNicsTemplate(t), nil
	case "create_snapshot":
		return CreateSnapshotTemplate(t), nil
	case "rollback_snapshot":
		return RollbackSnapshotTemplate(t), nil
	case "delete_snapshot":
		return DeleteSnapshotTemplate(t), nil
	case "reprovision":
		return ReprovisionTemplate(t), nil
	case "update_tags":
		return TagsTemplate(t), nil
	case "migrate_begin":
		return MigrateBeginTemplate(t), nil
	case "migrate_sync":
		return MigrateSyncTemplate(t), nil
	case "migrate_switch":
		return MigrateSwitchTemplate(t), nil
	default:
		return nil, fmt.Errorf("composer: unknown action %q", action)
	}
}

// Submit builds the pipeline for action, binds it to a fresh JobContext
// for vm, and hands it to the Executor. It returns the job uuid the
// caller should poll, per spec.md §4.1's async-by-default contract.
func (c *Composer) Submit(ctx context.Context, action string, vm *client.VM, caller client.CallerContext, params map[string]interface{}) (string, error) {
	p, err := c.pipelineFor(action)
	if err != nil {
		return "", err
	}
	p.ID = NewPipelineID()

	job := &client.Job{
		UUID:      p.ID,
		Name:      action,
		Execution: client.JobQueued,
		VMUUID:    vm.UUID,
		Task:      action,
		CreatedAt: time.Now().UTC(),
	}
	job.Params.Context.Caller = caller
	job.Params.Context.Params = toAnyMap(params)

	jc := &JobContext{
		Ctx:                 ctx,
		Job:                 job,
		VM:                  vm,
		Params:              params,
		Bundle:              c.Bundle,
		Waitlist:            c.Waitlist,
		Store:               c.Store,
		Tickets:             make(map[string]*client.Ticket),
		MarkAsFailedOnError: true,
	}

	return c.Executor.Submit(ctx, action, jc, p)
}

func toAnyMap(m map[string]interface{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
