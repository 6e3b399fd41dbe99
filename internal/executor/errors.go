package executor

import (
	"errors"
	"fmt"

	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/wildcard"
)

// outputTailSize is how much of a failed job's output is kept.
const outputTailSize = 4 << 10

// JobExecutionError describes a job that failed after all its attempts.
type JobExecutionError struct {
	Job      string
	Template string
	Binding  wildcard.Binding
	Argv     []string
	// ExitCode is the process exit status, -1 when the process did not
	// exit normally or never started.
	ExitCode int
	Attempts int
	// Output is the tail of the last attempt's combined output.
	Output string
	Err    error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempt(s) (exit code %d): %v", e.Job, e.Attempts, e.ExitCode, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }

func newJobExecutionError(j *job.Job, err error, out []byte, attempts int) *JobExecutionError {
	code := -1
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if len(out) > outputTailSize {
		out = out[len(out)-outputTailSize:]
	}
	return &JobExecutionError{
		Job:      j.Key(),
		Template: j.Template,
		Binding:  j.Binding,
		Argv:     j.Command,
		ExitCode: code,
		Attempts: attempts,
		Output:   string(out),
		Err:      err,
	}
}
