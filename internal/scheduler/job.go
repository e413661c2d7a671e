// Package scheduler implements the Scheduler: a daily wall-clock
// trigger at 07:00 in an IANA timezone, a thread-safe job
// registry with a validated status lifecycle, an execution-timeout
// monitor, and a manual run_now path — all driving the Pipeline
// Executor's RunCycle.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is one point in a Job's validated status lifecycle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusTimeout     Status = "timeout"
	StatusInterrupted Status = "interrupted"
)

// allowedTransitions is the closed set of valid status-to-status moves;
// update_status rejects anything not listed here.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusInterrupted},
	StatusRunning: {StatusCompleted, StatusFailed, StatusTimeout, StatusInterrupted},
}

func isAllowedTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one scheduled or manually-triggered forecast cycle.
type Job struct {
	ID               string
	Type             string
	ScheduleTime     time.Time
	CreationTime     time.Time
	Status           Status
	StatusUpdateTime time.Time
	Params           map[string]interface{}
	StatusDetails    map[string]interface{}
}

// NewJob constructs a pending Job of the given type, scheduled for
// scheduleTime.
func NewJob(jobType string, scheduleTime time.Time, params map[string]interface{}) *Job {
	now := time.Now()
	return &Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		ScheduleTime:     scheduleTime,
		CreationTime:     now,
		Status:           StatusPending,
		StatusUpdateTime: now,
		Params:           params,
	}
}

// Registry is the thread-safe in-memory job_id -> Job map. All
// operations take the same mutex; Go's sync.Mutex is not itself
// reentrant, so internal helpers that already hold the lock never call
// back into an exported, locking method.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry constructs an empty job Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*Job{}}
}

// Register stores job under its ID, overwriting any prior entry with the
// same ID.
func (r *Registry) Register(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get returns the job with the given ID, or (nil, false) if absent.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// UpdateStatus moves job id's status to next, validating the transition
// against allowedTransitions and recording details on the new status.
func (r *Registry) UpdateStatus(id string, next Status, details map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", id)
	}
	if !isAllowedTransition(j.Status, next) {
		return fmt.Errorf("scheduler: invalid status transition %s -> %s for job %q", j.Status, next, id)
	}
	j.Status = next
	j.StatusUpdateTime = time.Now()
	j.StatusDetails = details
	return nil
}

// ListByStatus returns every job currently in status, in no particular
// order.
func (r *Registry) ListByStatus(status Status) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

// ListByType returns every job of the given type, in no particular order.
func (r *Registry) ListByType(jobType string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Job
	for _, j := range r.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

// Remove deletes job id from the registry, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = map[string]*Job{}
}
