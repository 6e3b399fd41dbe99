package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/phylogrid/internal/job"
)

// ExitError is the error RecordingRunner returns for a failing attempt.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode mirrors exec.ExitError.
func (e *ExitError) ExitCode() int { return e.Code }

// ExecutionRecord holds the start and end times of a single job attempt.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// RecordingRunner is a fake job runner. Instead of running the command it
// writes every declared output under Dir, and records what ran and when.
type RecordingRunner struct {
	// Dir is the working directory outputs are written under.
	Dir string
	// Fail maps a job key to the number of attempts that fail before one
	// succeeds. A negative count fails every attempt.
	Fail map[string]int
	// Items maps a checkpoint job key to the files to create inside its
	// output directory.
	Items map[string][]string
	// Delay is how long every attempt takes; Delays overrides it per job.
	Delay  time.Duration
	Delays map[string]time.Duration

	mu         sync.Mutex
	ran        []string
	attempts   map[string]int
	records    map[string]ExecutionRecord
	running    int
	maxRunning int
}

// Run implements the executor's Runner interface.
func (r *RecordingRunner) Run(ctx context.Context, j *job.Job) ([]byte, error) {
	key := j.Key()

	r.mu.Lock()
	if r.attempts == nil {
		r.attempts = make(map[string]int)
		r.records = make(map[string]ExecutionRecord)
	}
	r.attempts[key]++
	attempt := r.attempts[key]
	r.running++
	r.maxRunning = max(r.maxRunning, r.running)
	delay := r.Delay
	if d, ok := r.Delays[key]; ok {
		delay = d
	}
	failures, failing := r.Fail[key]
	r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.mu.Lock()
		r.running--
		r.records[key] = ExecutionRecord{Start: start, End: time.Now()}
		r.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return []byte("interrupted\n"), ctx.Err()
		}
	}

	// Outputs are written even for failing attempts, like a tool that dies
	// halfway through.
	if err := r.writeOutputs(j); err != nil {
		return nil, err
	}
	out := []byte(fmt.Sprintf("running %s (attempt %d)\n", key, attempt))

	if failing && (failures < 0 || attempt <= failures) {
		return append(out, "boom\n"...), &ExitError{Code: 2}
	}

	r.mu.Lock()
	r.ran = append(r.ran, key)
	r.mu.Unlock()
	return out, nil
}

// writeOutputs stamps every output with the current time explicitly, since
// coarse filesystem clocks can give consecutive writes equal mtimes.
func (r *RecordingRunner) writeOutputs(j *job.Job) error {
	for _, p := range j.OutputPaths() {
		full := filepath.Join(r.Dir, filepath.FromSlash(p))
		if j.Kind == job.KindCheckpoint {
			if err := os.MkdirAll(full, 0o755); err != nil {
				return err
			}
			for _, item := range r.Items[j.Key()] {
				if err := os.WriteFile(filepath.Join(full, item), []byte(item), 0o644); err != nil {
					return err
				}
			}
			if err := touch(full); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(j.Key()), 0o644); err != nil {
			return err
		}
		if err := touch(full); err != nil {
			return err
		}
	}
	return nil
}

func touch(path string) error {
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// Ran returns the keys of successful attempts in completion order.
func (r *RecordingRunner) Ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

// Attempts returns how many times a job was started.
func (r *RecordingRunner) Attempts(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

// Record returns the timing of a job's last attempt.
func (r *RecordingRunner) Record(key string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

// MaxConcurrent returns the highest number of simultaneous attempts seen.
func (r *RecordingRunner) MaxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxRunning
}
