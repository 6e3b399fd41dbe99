package app

import (
	"context"
	"fmt"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/executor"
	"github.com/vk/phylogrid/internal/notify"
	"github.com/vk/phylogrid/internal/runner"
)

// Run resolves the configured targets and executes the resulting graph. The
// report is returned whenever execution started, even when jobs failed.
func (a *App) Run(ctx context.Context) (*executor.Report, error) {
	ctx = a.withLogger(ctx)
	a.ctx = ctx
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	if err := a.healthCheckServer(); err != nil {
		return nil, err
	}
	defer a.closeHealthCheckServer()

	g, err := a.Plan(ctx)
	if err != nil {
		return nil, err
	}

	pub := a.publisher(ctx)
	defer pub.Close()

	exec := executor.New(
		&runner.Process{
			Dir:    a.config.Dir,
			LogDir: a.config.LogDir,
			Env:    []string{"PHYLOGRID_RUN_ID=" + a.runID},
		},
		a.project.Expander(a.config.Dir),
		executor.Options{
			Dir:       a.config.Dir,
			Workers:   a.config.Workers,
			Threads:   a.config.Threads,
			MemoryMB:  a.config.MemoryMB,
			Policy:    a.config.Policy,
			Observers: []executor.Observer{a.metrics.Observe, pub.Observe},
		},
	)

	rep, err := exec.Execute(ctx, g)
	pub.Finish(ctx, rep)
	if err != nil {
		return rep, fmt.Errorf("execution failed: %w", err)
	}

	logger.Debug("App.Run method finished.")
	return rep, nil
}

// publisher connects to the events endpoint, if one is configured. Events
// are best effort, so a failed connection only disables them.
func (a *App) publisher(ctx context.Context) *notify.Publisher {
	if a.config.EventsURL == "" {
		return notify.Nop()
	}
	pub, err := notify.Dial(ctx, a.runID, notify.Options{
		URL:            a.config.EventsURL,
		Namespace:      a.config.EventsNamespace,
		ConnectTimeout: a.config.EventsTimeout,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Run events disabled.", "url", a.config.EventsURL, "error", err)
		return notify.Nop()
	}
	return pub
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
