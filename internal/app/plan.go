package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/graph"
)

// Plan resolves the configured targets into a job graph without running
// anything. Jobs behind an unexpanded checkpoint are not part of it yet.
func (a *App) Plan(ctx context.Context) (*graph.Graph, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)

	targets, err := a.project.Targets(a.config.Targets)
	if err != nil {
		return nil, err
	}
	logger.Debug("Targets expanded.", "targets", targets)

	g, err := a.project.Resolver(a.config.Dir).Resolve(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job graph: %w", err)
	}
	logger.Info("Job graph resolved.", "targets", len(targets), "jobs", g.Len())
	return g, nil
}

// WritePlan renders g as a table in execution order.
func WritePlan(w io.Writer, g *graph.Graph) error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Job", "Template", "Binding", "Depends On", "Threads", "Memory MB"})
	for i, j := range order {
		deps, err := g.Dependencies(j.Key())
		if err != nil {
			return err
		}
		name := j.Template
		if j.IsPlaceholder {
			name += " (awaits checkpoint)"
		}
		mem := j.MemoryExpr
		if mem == "" {
			mem = "-"
		}
		t.AppendRow(table.Row{i + 1, j.Key(), name, j.Binding.String(), strings.Join(deps, "\n"), j.Threads, mem})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d jobs", len(order))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, AutoMerge: true},
	})
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return nil
}
