package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/phylogrid/internal/checkpoint"
	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/graph"
	"github.com/vk/phylogrid/internal/job"
)

// Policy decides what happens to the rest of the run after a job fails.
type Policy int

const (
	// KeepGoing finishes every job not downstream of a failure.
	KeepGoing Policy = iota
	// AbortOnFailure cancels running jobs and starts nothing new.
	AbortOnFailure
)

func (p Policy) String() string {
	if p == AbortOnFailure {
		return "abort-on-failure"
	}
	return "keep-going"
}

// Runner runs one job attempt, returning its combined output. A nil error is
// the only success signal.
type Runner interface {
	Run(ctx context.Context, j *job.Job) ([]byte, error)
}

// Expander grows the graph once a checkpoint has succeeded.
type Expander interface {
	Expand(ctx context.Context, g *graph.Graph, checkpointKey string) (*checkpoint.Result, error)
}

// Options configures an Executor.
type Options struct {
	// Dir is the working directory job paths are relative to.
	Dir string
	// Workers bounds concurrently running jobs. Defaults to the CPU count.
	Workers int
	// Threads is the thread budget. Defaults to Workers.
	Threads int64
	// MemoryMB is the memory budget; zero means unbounded.
	MemoryMB int64
	Policy   Policy
	// Observers receive every job state transition.
	Observers []Observer
}

// Executor runs job graphs.
type Executor struct {
	runner   Runner
	expander Expander
	budget   *Budget
	opts     Options
}

// New creates an Executor. expander may be nil for graphs without
// checkpoints.
func New(r Runner, x Expander, opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Threads < 1 {
		opts.Threads = int64(opts.Workers)
	}
	return &Executor{
		runner:   r,
		expander: x,
		budget:   NewBudget(opts.Threads, opts.MemoryMB),
		opts:     opts,
	}
}

// run is the state of one Execute call. It is only touched by the
// coordinating loop.
type run struct {
	e      *Executor
	g      *graph.Graph
	logger *slog.Logger
	states map[string]job.State
	queue  []task
	report *Report
}

// Execute runs every job of g that is not up to date. It returns when no job
// can make further progress. The error joins every job failure and, if the
// run was interrupted, the context's error.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		e:      e,
		g:      g,
		logger: logger,
		states: make(map[string]job.State, len(order)),
		report: &Report{Errors: make(map[string]error)},
	}
	keys := make([]string, len(order))
	for i, j := range order {
		keys[i] = j.Key()
		r.states[keys[i]] = job.Pending
	}

	logger.Info("🚀 Starting execution.",
		"jobs", len(order),
		"workers", e.opts.Workers,
		"threads", e.budget.Threads(),
		"memory_mb", e.budget.MemoryMB(),
		"policy", e.opts.Policy.String(),
	)

	tasks := make(chan task)
	// Each worker may have a start notice and a final result in flight.
	results := make(chan result, 2*e.opts.Workers)
	var workers errgroup.Group
	for i := range e.opts.Workers {
		workers.Go(func() error {
			e.worker(runCtx, i+1, tasks, results)
			return nil
		})
	}

	r.promote(runCtx, keys)

	var (
		running  int
		stopping bool
		done     = ctx.Done()
	)
	for running > 0 || (len(r.queue) > 0 && !stopping) {
		var (
			out  chan<- task
			next task
		)
		if len(r.queue) > 0 && !stopping {
			out, next = tasks, r.queue[0]
		}

		select {
		case out <- next:
			r.queue = r.queue[1:]
			running++

		case res := <-results:
			if res.started {
				r.transition(runCtx, res.job, job.Running, nil, 0)
				continue
			}
			running--
			failed := r.finish(runCtx, res)
			if failed && e.opts.Policy == AbortOnFailure && !stopping {
				logger.Warn("Aborting run after failure.", "job", res.job.Key())
				stopping = true
				cancel()
			}

		case <-done:
			done = nil
			logger.Warn("Run interrupted.", "error", ctx.Err())
			stopping = true
			cancel()
		}
	}
	close(tasks)
	_ = workers.Wait()

	r.cancelRemaining(runCtx, keys)

	rep := r.report
	logger.Info("🏁 Execution finished.",
		"succeeded", len(rep.Succeeded),
		"up_to_date", len(rep.UpToDate),
		"failed", len(rep.Failed),
		"cancelled", len(rep.Cancelled),
	)
	return rep, errors.Join(ctx.Err(), rep.Err())
}

// promote moves every job among keys whose producers all succeeded out of
// Pending: fresh jobs succeed on the spot, the others are queued.
func (r *run) promote(ctx context.Context, keys []string) {
	work := slices.Clone(keys)
	for len(work) > 0 && ctx.Err() == nil {
		key := work[0]
		work = work[1:]

		if r.states[key] != job.Pending || !r.depsSucceeded(key) {
			continue
		}
		j, ok := r.g.Job(key)
		if !ok || j.IsPlaceholder {
			continue
		}

		t, fresh, err := r.e.prepare(ctx, j)
		switch {
		case err != nil:
			r.fail(ctx, j, err, 0)
		case fresh:
			r.logger.Info("⏭️ Job is up to date.", "job", key)
			r.report.UpToDate = append(r.report.UpToDate, key)
			work = append(work, r.succeed(ctx, j, true, 0)...)
		default:
			r.transition(ctx, j, job.Ready, nil, 0)
			r.queue = append(r.queue, t)
		}
	}
}

// prepare checks freshness and sizes the job's resource request.
func (e *Executor) prepare(ctx context.Context, j *job.Job) (task, bool, error) {
	st, err := inspect(ctx, e.opts.Dir, j)
	if err != nil {
		return task{}, false, fmt.Errorf("checking files of %s: %w", j.Key(), err)
	}
	if st.fresh {
		return task{}, true, nil
	}

	mem, err := j.EstimateMemoryMB(st.inputMB)
	if err != nil {
		return task{}, false, fmt.Errorf("estimating memory of %s: %w", j.Key(), err)
	}
	threads, mem, clamped := e.budget.Clamp(int64(j.Threads), mem)
	if clamped {
		ctxlog.FromContext(ctx).Warn("Clamping job resources to the run budget.",
			"job", j.Key(), "threads", threads, "memory_mb", mem)
	}
	return task{job: j, threads: threads, memoryMB: mem}, false, nil
}

// finish records a worker result. It reports whether the job failed.
func (r *run) finish(ctx context.Context, res result) bool {
	key := res.job.Key()
	switch {
	case res.err == nil:
		r.promote(ctx, r.succeed(ctx, res.job, false, res.duration))
		return false
	case res.cancelled:
		r.cancel(ctx, res.job, res.err)
		return false
	default:
		r.logger.Error("❌ Job failed.", "job", key, "error", res.err)
		r.fail(ctx, res.job, res.err, res.duration)
		return true
	}
}

// succeed marks j succeeded and returns the jobs that may have become
// ready. A checkpoint first expands the graph.
func (r *run) succeed(ctx context.Context, j *job.Job, upToDate bool, d time.Duration) []string {
	key := j.Key()
	r.states[key] = job.Succeeded
	r.report.Succeeded = append(r.report.Succeeded, key)
	r.emit(ctx, Event{Job: key, Template: j.Template, State: job.Succeeded, UpToDate: upToDate, Duration: d})

	var next []string
	if j.Kind == job.KindCheckpoint && r.e.expander != nil {
		next = append(next, r.expand(ctx, key)...)
	}
	dependents, err := r.g.Dependents(key)
	if err != nil {
		r.logger.Error("Failed to get dependents for completed job.", "job", key, "error", err)
		return next
	}
	return append(next, dependents...)
}

func (r *run) expand(ctx context.Context, key string) []string {
	waiting := r.g.DeferredFrom(key)
	if len(waiting) == 0 {
		return nil
	}

	res, err := r.e.expander.Expand(ctx, r.g, key)
	if err != nil {
		r.logger.Error("❌ Checkpoint expansion failed.", "checkpoint", key, "error", err)
		for _, d := range waiting {
			if agg, ok := r.g.Job(d.Aggregate); ok && r.states[d.Aggregate] == job.Pending {
				r.fail(ctx, agg, err, 0)
			}
		}
		return nil
	}

	for _, k := range res.Added {
		r.states[k] = job.Pending
	}
	return append(slices.Clone(res.Added), res.Materialized...)
}

// fail marks j failed and cancels everything downstream of it.
func (r *run) fail(ctx context.Context, j *job.Job, err error, d time.Duration) {
	key := j.Key()
	r.states[key] = job.Failed
	r.report.Failed = append(r.report.Failed, key)
	r.report.Errors[key] = err
	r.emit(ctx, Event{Job: key, Template: j.Template, State: job.Failed, Err: err, Duration: d})

	cause := fmt.Errorf("upstream job %s failed", key)
	queue, _ := r.g.Dependents(key)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if r.states[k].Terminal() {
			continue
		}
		if dj, ok := r.g.Job(k); ok {
			r.cancel(ctx, dj, cause)
		}
		more, _ := r.g.Dependents(k)
		queue = append(queue, more...)
	}
}

func (r *run) cancel(ctx context.Context, j *job.Job, cause error) {
	key := j.Key()
	if r.states[key].Terminal() {
		return
	}
	r.states[key] = job.Cancelled
	r.report.Cancelled = append(r.report.Cancelled, key)
	r.logger.Debug("Job cancelled.", "job", key, "reason", cause)
	r.emit(ctx, Event{Job: key, Template: j.Template, State: job.Cancelled, Err: cause})
}

// cancelRemaining cancels every job the run never finished, in the order
// given, then any job added by expansion.
func (r *run) cancelRemaining(ctx context.Context, keys []string) {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, j := range r.g.Jobs() {
		if !seen[j.Key()] {
			keys = append(keys, j.Key())
		}
	}
	for _, k := range keys {
		if r.states[k].Terminal() {
			continue
		}
		if j, ok := r.g.Job(k); ok {
			r.cancel(ctx, j, errors.New("run stopped before the job could start"))
		}
	}
}

func (r *run) transition(ctx context.Context, j *job.Job, s job.State, err error, d time.Duration) {
	r.states[j.Key()] = s
	r.emit(ctx, Event{Job: j.Key(), Template: j.Template, State: s, Err: err, Duration: d})
}

func (r *run) depsSucceeded(key string) bool {
	deps, err := r.g.Dependencies(key)
	if err != nil {
		return false
	}
	for _, d := range deps {
		if r.states[d] != job.Succeeded {
			return false
		}
	}
	return true
}

func (r *run) emit(ctx context.Context, ev Event) {
	ev.Time = time.Now()
	for _, o := range r.e.opts.Observers {
		o(ctx, ev)
	}
}
