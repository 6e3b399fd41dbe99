package job

// State represents the execution state of a job.
type State int32

const (
	// Pending indicates the job is waiting for its dependencies.
	Pending State = iota
	// Ready indicates every dependency succeeded and the job awaits a worker
	// and budget.
	Ready
	// Running indicates the job's process is executing.
	Running
	// Succeeded indicates the job completed, or was already up to date.
	Succeeded
	// Failed indicates the job's process failed after all retries.
	Failed
	// Cancelled indicates the job was never started because an upstream job
	// failed or the run was aborted.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}
