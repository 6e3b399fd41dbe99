package executor

import (
	"context"
	"errors"
	"time"

	"github.com/vk/phylogrid/internal/job"
)

// Event is emitted on every job state transition.
type Event struct {
	Job      string
	Template string
	State    job.State
	// UpToDate is set on a Succeeded event for a job that did not run
	// because its outputs were fresh.
	UpToDate bool
	Err      error
	// Duration is the time spent running, set on terminal events of jobs
	// that ran.
	Duration time.Duration
	Time     time.Time
}

// Observer receives events. Observers are called from the coordinating loop
// and must not block.
type Observer func(ctx context.Context, ev Event)

// Report summarizes a run. Every list is in completion order.
type Report struct {
	// Succeeded lists every job that succeeded, including up-to-date ones.
	Succeeded []string
	// UpToDate lists the jobs that were skipped because their outputs were
	// fresh.
	UpToDate []string
	Failed   []string
	// Cancelled lists the jobs never started because an upstream job failed
	// or the run was aborted.
	Cancelled []string
	// Errors maps a failed job to its error.
	Errors map[string]error
}

// Ran returns the jobs that succeeded by running.
func (r *Report) Ran() []string {
	fresh := make(map[string]bool, len(r.UpToDate))
	for _, k := range r.UpToDate {
		fresh[k] = true
	}
	var out []string
	for _, k := range r.Succeeded {
		if !fresh[k] {
			out = append(out, k)
		}
	}
	return out
}

// Err joins the errors of every failed job.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, k := range r.Failed {
		errs = append(errs, r.Errors[k])
	}
	return errors.Join(errs...)
}
