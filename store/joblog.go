package store

import (
	"encoding/json"
	"sort"

	"github.com/mistifyio/kvite"

	"github.com/Smithx10/sdc-vmapi/client"
)

// JobLog is the append-from-the-core's-view record of every submitted
// mutation, generalizing the teacher's in-memory JobLog (one ring buffer
// per guest, pruned to MaxLoggedJobs) into a persisted bucket queryable by
// task, vm_uuid, and execution state for audit (P7).
type JobLog struct {
	store *VMStore
}

// NewJobLog returns a JobLog backed by store's kvite database.
func NewJobLog(s *VMStore) *JobLog { return &JobLog{store: s} }

// Put inserts or replaces a job record.
func (l *JobLog) Put(j *client.Job) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketJobs)
		if err != nil {
			return err
		}
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return b.Put(j.UUID, data)
	})
}

// Get retrieves a single job by uuid.
func (l *JobLog) Get(uuid string) (*client.Job, error) {
	var j *client.Job
	err := l.store.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketJobs)
		if err != nil {
			return err
		}
		data, err := b.Get(uuid)
		if err != nil {
			return err
		}
		if data == nil {
			return ErrNotFound
		}
		j = &client.Job{}
		return json.Unmarshal(data, j)
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// JobFilter selects jobs for GET /jobs and GET /vms/:uuid/jobs.
type JobFilter struct {
	Task      string
	VMUUID    string
	Execution string
}

// List returns jobs matching filter, newest first (P7).
func (l *JobLog) List(filter JobFilter) ([]*client.Job, error) {
	var jobs []*client.Job
	err := l.store.db.Transaction(func(tx *kvite.Tx) error {
		b, err := tx.Bucket(bucketJobs)
		if err != nil {
			return err
		}
		return b.ForEach(func(_ string, data []byte) error {
			j := &client.Job{}
			if err := json.Unmarshal(data, j); err != nil {
				return err
			}
			if filter.Task != "" && j.Task != filter.Task {
				return nil
			}
			if filter.VMUUID != "" && j.VMUUID != filter.VMUUID {
				return nil
			}
			if filter.Execution != "" && string(j.Execution) != filter.Execution {
				return nil
			}
			jobs = append(jobs, j)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}
