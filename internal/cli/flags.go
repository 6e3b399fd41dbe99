package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/vk/phylogrid/internal/app"
	"github.com/vk/phylogrid/internal/executor"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	workflows  []string
	dir        string
	logFormat  string
	logLevel   string
}

func (o *globalOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to the YAML build configuration (required).")
	fs.StringSliceVarP(&o.workflows, "workflow", "w", nil, "Workflow .hcl file or directory; repeatable. Defaults to the embedded ncov workflow.")
	fs.StringVarP(&o.dir, "dir", "d", ".", "Working directory all job paths are relative to.")
	fs.StringVar(&o.logFormat, "log-format", "text", fmt.Sprintf("Log output format, one of %s.", strings.Join(app.LogFormats, ", ")))
	fs.StringVar(&o.logLevel, "log-level", "info", fmt.Sprintf("Logging level, one of %s.", strings.Join(app.LogLevels, ", ")))
}

// config builds the app configuration shared by every command.
func (o *globalOptions) config(targets []string) (app.Config, error) {
	if o.configPath == "" {
		return app.Config{}, fmt.Errorf(`required flag "config" not set`)
	}
	if slices.Contains(targets, "") {
		return app.Config{}, fmt.Errorf("targets must not be empty")
	}
	return app.Config{
		ConfigPath:    o.configPath,
		WorkflowPaths: o.workflows,
		Targets:       targets,
		Dir:           o.dir,
		LogFormat:     strings.ToLower(o.logFormat),
		LogLevel:      strings.ToLower(o.logLevel),
	}, nil
}

// runOptions are the execution flags of the run command.
type runOptions struct {
	workers         int
	threads         int64
	memoryMB        int64
	abortOnFailure  bool
	dryRun          bool
	logDir          string
	healthcheckPort int
	eventsURL       string
	eventsNamespace string
	eventsTimeout   time.Duration
}

func (o *runOptions) register(fs *pflag.FlagSet) {
	fs.IntVarP(&o.workers, "workers", "j", 0, "Number of concurrent workers. 0 uses the CPU count.")
	fs.Int64Var(&o.threads, "threads", 0, "Thread budget shared by running jobs. 0 uses the worker count.")
	fs.Int64Var(&o.memoryMB, "memory-mb", 0, "Memory budget in MB shared by running jobs. 0 is unbounded.")
	fs.BoolVar(&o.abortOnFailure, "abort-on-failure", false, "Cancel running jobs and start nothing new after the first failure.")
	fs.BoolVarP(&o.dryRun, "dry-run", "n", false, "Print the plan instead of executing it.")
	fs.StringVar(&o.logDir, "log-dir", "", "Directory receiving one output log per job, relative to --dir.")
	fs.IntVar(&o.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	fs.StringVar(&o.eventsURL, "events-url", "", "socket.io endpoint receiving job state events.")
	fs.StringVar(&o.eventsNamespace, "events-namespace", "/", "socket.io namespace for job state events.")
	fs.DurationVar(&o.eventsTimeout, "events-timeout", 0, "Time to wait for the events endpoint to accept the connection.")
}

func (o *runOptions) apply(cfg *app.Config) {
	cfg.Workers = o.workers
	cfg.Threads = o.threads
	cfg.MemoryMB = o.memoryMB
	cfg.LogDir = o.logDir
	cfg.HealthcheckPort = o.healthcheckPort
	cfg.EventsURL = o.eventsURL
	cfg.EventsNamespace = o.eventsNamespace
	cfg.EventsTimeout = o.eventsTimeout
	if o.abortOnFailure {
		cfg.Policy = executor.AbortOnFailure
	}
}
