package app

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vk/phylogrid/internal/executor"
)

// Valid values for the logging options.
var (
	LogFormats = []string{"text", "json"}
	LogLevels  = []string{"debug", "info", "warn", "error"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPath is the YAML build configuration.
	ConfigPath string
	// WorkflowPaths are .hcl files or directories; empty selects the
	// embedded workflow.
	WorkflowPaths []string
	// Targets are requested output patterns; empty selects the workflow's
	// default targets.
	Targets []string

	// Dir is the working directory every job path is relative to.
	Dir string
	// LogDir receives one combined output log per job, relative to Dir.
	// Empty disables job logs.
	LogDir string

	Workers  int
	Threads  int64
	MemoryMB int64
	Policy   executor.Policy

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// EventsURL is a socket.io endpoint receiving job state events. Empty
	// disables publishing.
	EventsURL          string
	EventsNamespace    string
	EventsTimeout      time.Duration
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	var errs []error
	if !slices.Contains(LogFormats, cfg.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of %v", cfg.LogFormat, LogFormats))
	}
	if !slices.Contains(LogLevels, cfg.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of %v", cfg.LogLevel, LogLevels))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", cfg.Workers))
	}
	if cfg.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must not be negative, got %d", cfg.Threads))
	}
	if cfg.MemoryMB < 0 {
		errs = append(errs, fmt.Errorf("memory budget must not be negative, got %d", cfg.MemoryMB))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
