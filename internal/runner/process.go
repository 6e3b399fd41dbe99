// Package runner runs jobs as external processes.
package runner

import (
	"context"
	"fmt"
	"os"
	"net/url"
	"os/exec"
	"path/filepath"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/job"
)

// Process runs a job's argv as a child process. The exit status is the only
// success signal.
type Process struct {
	// Dir is the working directory of every process.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// LogDir, when set, receives one log file per job with the combined
	// output of its last attempt.
	LogDir string
}

// Run starts the job's command and waits for it, returning the combined
// stdout and stderr. Cancelling ctx kills the process.
func (p *Process) Run(ctx context.Context, j *job.Job) ([]byte, error) {
	if len(j.Command) == 0 {
		return nil, fmt.Errorf("job %s has no command", j.Key())
	}
	logger := ctxlog.FromContext(ctx)

	cmd := exec.CommandContext(ctx, j.Command[0], j.Command[1:]...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	logger.Debug("Starting process.", "argv", j.Command)
	out, err := cmd.CombinedOutput()

	if p.LogDir != "" {
		if werr := p.writeLog(j, out); werr != nil {
			logger.Warn("Could not write job log.", "error", werr)
		}
	}
	return out, err
}

func (p *Process) writeLog(j *job.Job, out []byte) error {
	dir := p.LogDir
	if !filepath.IsAbs(dir) && p.Dir != "" {
		dir = filepath.Join(p.Dir, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, LogName(j.Key())), out, 0o644)
}

// LogName returns the file name a job's log is written to. Distinct keys
// always map to distinct names.
func LogName(key string) string {
	return url.PathEscape(key) + ".log"
}
