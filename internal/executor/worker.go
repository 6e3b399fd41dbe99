package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/job"
)

// task is a ready job with its clamped resource request.
type task struct {
	job      *job.Job
	threads  int64
	memoryMB int64
}

// result is a worker's report on one task.
type result struct {
	job *job.Job
	err error
	// cancelled is set when the job stopped because the run was cancelled.
	cancelled bool
	duration  time.Duration
	// started marks the notice that the job holds its budget and is about
	// to run. It is not a final result.
	started bool
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, id int, tasks <-chan task, results chan<- result) {
	logger := ctxlog.FromContext(ctx).With("worker", id)
	logger.Debug("Worker started.")

	for t := range tasks {
		jobCtx := ctxlog.WithLogger(ctx, logger.With("job", t.job.Key()))
		if err := e.budget.Acquire(jobCtx, t.threads, t.memoryMB); err != nil {
			results <- result{job: t.job, err: err, cancelled: true}
			continue
		}
		results <- result{job: t.job, started: true}
		results <- e.runTask(jobCtx, t)
		// Released only after the result is queued, so the coordinator sees
		// this job finish before any job that reuses its budget starts.
		e.budget.Release(t.threads, t.memoryMB)
	}
	logger.Debug("Worker finished.")
}

// runTask runs a task whose budget the worker already holds.
func (e *Executor) runTask(ctx context.Context, t task) result {
	logger := ctxlog.FromContext(ctx)

	logger.Info("▶️ Starting job.", "threads", t.threads, "memory_mb", t.memoryMB)
	start := time.Now()
	err := e.runJob(ctx, t.job)
	res := result{job: t.job, err: err, duration: time.Since(start)}
	if err != nil {
		res.cancelled = ctx.Err() != nil
		return res
	}
	logger.Info("✅ Finished job.", "duration", res.duration)
	return res
}

// runJob runs one job to completion, retrying as the job allows.
func (e *Executor) runJob(ctx context.Context, j *job.Job) error {
	logger := ctxlog.FromContext(ctx)

	if err := e.prepareOutputs(j); err != nil {
		return fmt.Errorf("preparing outputs of %s: %w", j.Key(), err)
	}

	if j.EmptyAggregation() {
		logger.Info("Aggregating zero items, writing empty outputs.")
		return e.touchOutputs(j)
	}

	attempts := j.Retries + 1
	var (
		out []byte
		err error
		n   int
	)
	for n = 1; n <= attempts; n++ {
		out, err = e.runner.Run(ctx, j)
		if err == nil {
			err = e.verifyOutputs(j)
		}
		if err == nil {
			return nil
		}
		e.removeOutputs(ctx, j)
		if ctx.Err() != nil || n == attempts {
			break
		}
		logger.Warn("Job attempt failed, retrying.", "attempt", n, "attempts", attempts, "error", err)
	}
	return newJobExecutionError(j, err, out, min(n, attempts))
}

// prepareOutputs removes what an earlier run left at every output path and
// creates the parent directories. Expansion of a checkpoint only ever sees
// the items of its latest run.
func (e *Executor) prepareOutputs(j *job.Job) error {
	for _, p := range j.OutputPaths() {
		full := resolvePath(e.opts.Dir, p)
		if err := os.RemoveAll(full); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// touchOutputs writes every output as an empty file.
func (e *Executor) touchOutputs(j *job.Job) error {
	for _, p := range j.OutputPaths() {
		if err := os.WriteFile(resolvePath(e.opts.Dir, p), nil, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// verifyOutputs checks that a successful job created what it declared.
func (e *Executor) verifyOutputs(j *job.Job) error {
	for _, p := range j.OutputPaths() {
		if _, err := os.Stat(resolvePath(e.opts.Dir, p)); err != nil {
			return fmt.Errorf("declared output %q was not created", p)
		}
	}
	return nil
}

// removeOutputs deletes whatever a failed attempt left behind so a later
// run does not mistake it for a fresh result.
func (e *Executor) removeOutputs(ctx context.Context, j *job.Job) {
	for _, p := range j.OutputPaths() {
		if err := os.RemoveAll(resolvePath(e.opts.Dir, p)); err != nil {
			ctxlog.FromContext(ctx).Warn("Could not remove partial output.", "path", p, "error", err)
		}
	}
}
