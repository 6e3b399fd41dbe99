package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/metrics"
	"github.com/vk/phylogrid/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	runID      string
	project    *pipeline.Project
	metricsReg *prometheus.Registry
	metrics    *metrics.Recorder
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads and validates
// the build configuration and workflow, so every later failure is a run
// failure rather than a setup failure. Logs are written to logW.
func NewApp(logW io.Writer, cfg *Config) (*App, error) {
	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW).With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	project, err := pipeline.Load(ctx, pipeline.Options{
		WorkflowPaths: cfg.WorkflowPaths,
		ConfigPath:    cfg.ConfigPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	logger.Debug("Project loaded.",
		"templates", len(project.Registry.Templates()),
		"regions", project.Config.Regions(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		ctx:        ctx,
		logger:     logger,
		config:     cfg,
		runID:      runID,
		project:    project,
		metricsReg: reg,
		metrics:    metrics.New(reg),
	}, nil
}

// RunID identifies this App's run in logs and published events.
func (a *App) RunID() string {
	return a.runID
}

// Project returns the loaded workflow and build configuration.
func (a *App) Project() *pipeline.Project {
	return a.project
}

// Metrics returns the run's metric collectors.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}
