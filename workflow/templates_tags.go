package workflow

import (
	"fmt"
	"time"
)

// tagsOp identifies which tag mutation a tags pipeline run performs;
// bound onto jc.Params by the Composer from the gateway's method
// (POST merges, PUT replaces, DELETE removes one or all keys).
type tagsOp string

const (
	tagsSet       tagsOp = "set"
	tagsReplace   tagsOp = "replace"
	tagsDeleteKey tagsOp = "delete_key"
	tagsDeleteAll tagsOp = "delete_all"
)

func applyTagsOp(jc *JobContext) {
	op, _ := jc.Params["tags_op"].(string)
	switch tagsOp(op) {
	case tagsReplace:
		tags, _ := jc.Params["tags"].(map[string]any)
		jc.VM.Tags = tags
	case tagsDeleteKey:
		key, _ := jc.Params["tag_key"].(string)
		delete(jc.VM.Tags, key)
	case tagsDeleteAll:
		jc.VM.Tags = map[string]any{}
	default: // tagsSet
		if jc.VM.Tags == nil {
			jc.VM.Tags = map[string]any{}
		}
		tags, _ := jc.Params["tags"].(map[string]any)
		for k, v := range tags {
			jc.VM.Tags[k] = v
		}
	}
}

// TagsTemplate builds the tags pipeline: the Validator has already
// rejected reserved triton.*/docker/sdc_docker keys and typed-value
// mismatches (spec.md §4.2); this pipeline only applies the accepted
// mutation and resyncs the CN's view of internal_metadata.triton_tags.
func TagsTemplate(tuning Tuning) *Pipeline {
	return &Pipeline{
		Action:  "update_tags",
		Timeout: tuning.timeoutOr(120 * time.Second),
		Tasks: []Task{
			acquireVMTicket(),
			{
				Name: "tags.apply",
				Body: func(jc *JobContext) error {
					applyTagsOp(jc)
					return nil
				},
			},
			{
				Name:    "cnapi.sync_tags",
				Timeout: tuning.taskTimeoutOr(60 * time.Second),
				Retry:   tuning.retryOr(3),
				Body: func(jc *JobContext) error {
					t, err := jc.Bundle.CNAPI.Action(jc.Ctx, jc.VM.ServerUUID, jc.VM.UUID, "set_tags", map[string]interface{}{"tags": jc.VM.Tags})
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
			persistVM(),
			releaseVMTicket(),
		},
		OnError:  []Task{releaseVMTicket()},
		OnCancel: []Task{releaseVMTicket()},
	}
}
