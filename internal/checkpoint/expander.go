package checkpoint

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/fsutil"
	"github.com/vk/phylogrid/internal/graph"
	"github.com/vk/phylogrid/internal/resolver"
	"github.com/vk/phylogrid/internal/template"
)

// listConcurrency bounds how many containers are listed at once.
const listConcurrency = 4

// Expander materializes aggregation jobs once their checkpoint has run.
type Expander struct {
	reg *template.Registry
	res *resolver.Resolver
	dir string
}

// New creates an Expander. dir is the working directory checkpoint
// containers are listed under.
func New(reg *template.Registry, res *resolver.Resolver, dir string) *Expander {
	return &Expander{reg: reg, res: res, dir: dir}
}

// Result describes how an expansion changed the graph.
type Result struct {
	// Added lists the keys of jobs new to the graph, in insertion order.
	Added []string
	// Materialized lists the aggregation jobs that are no longer
	// placeholders.
	Materialized []string
}

// Expand materializes every aggregation waiting on the checkpoint cpKey.
// On error the graph may already contain some of the new jobs; the failing
// aggregation stays a placeholder.
func (e *Expander) Expand(ctx context.Context, g *graph.Graph, cpKey string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	deferred := g.DeferredFrom(cpKey)
	if len(deferred) == 0 {
		return &Result{}, nil
	}

	listings, err := e.list(ctx, deferred)
	if err != nil {
		return nil, err
	}

	before := make(map[string]bool, g.Len())
	for _, j := range g.Jobs() {
		before[j.Key()] = true
	}

	res := &Result{}
	for i, d := range deferred {
		if err := e.materialize(ctx, g, d, listings[i]); err != nil {
			return nil, err
		}
		res.Materialized = append(res.Materialized, d.Aggregate)
	}

	if err := g.DetectCycles(); err != nil {
		return nil, &ExpansionError{Checkpoint: cpKey, Aggregate: deferred[0].Aggregate, Reason: "expansion introduced a cycle", Err: err}
	}

	for _, j := range g.Jobs() {
		if !before[j.Key()] {
			res.Added = append(res.Added, j.Key())
		}
	}
	logger.Info("🧩 Checkpoint expanded.", "checkpoint", cpKey, "added", len(res.Added), "aggregations", len(res.Materialized))
	return res, nil
}

// list reads the container of every deferred aggregation in parallel.
func (e *Expander) list(ctx context.Context, deferred []graph.Deferred) ([][]string, error) {
	listings := make([][]string, len(deferred))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(listConcurrency)
	for i, d := range deferred {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			files, err := fsutil.ListFiles(filepath.Join(e.dir, filepath.FromSlash(d.Dir)))
			if err != nil {
				return &ExpansionError{Checkpoint: d.Checkpoint, Aggregate: d.Aggregate, Reason: "listing " + d.Dir, Err: err}
			}
			mu.Lock()
			listings[i] = files
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

func (e *Expander) materialize(ctx context.Context, g *graph.Graph, d graph.Deferred, files []string) error {
	logger := ctxlog.FromContext(ctx)
	fail := func(reason string, err error) error {
		return &ExpansionError{Checkpoint: d.Checkpoint, Aggregate: d.Aggregate, Reason: reason, Err: err}
	}

	agg, ok := g.Job(d.Aggregate)
	if !ok {
		return fail("aggregation job is not in the graph", nil)
	}
	t, ok := e.reg.Get(agg.Template)
	if !ok || t.Gather == nil {
		return fail("template "+agg.Template+" has no gather block", nil)
	}
	gather := t.Gather

	var identities []string
	for _, f := range files {
		b, err := gather.Item.Match(f)
		if err != nil {
			logger.Debug("Ignoring container entry.", "checkpoint", d.Checkpoint, "entry", f)
			continue
		}
		if id := b[gather.Identity()]; !slices.Contains(identities, id) {
			identities = append(identities, id)
		}
	}

	paths := make([]string, 0, len(identities))
	for _, id := range identities {
		p, err := gather.Input.Expand(d.Binding.With(gather.Identity(), id), e.reg.Lookup)
		if err != nil {
			return fail("building item input for "+id, err)
		}
		paths = append(paths, p)
	}

	producers, err := e.res.Extend(ctx, g, paths)
	if err != nil {
		return fail("resolving item jobs", err)
	}

	j, err := t.Materialize(d.Binding, paths)
	if err != nil {
		return fail("materializing", err)
	}
	if err := g.Replace(j); err != nil {
		return fail("materializing", err)
	}
	for _, key := range producers {
		if key == "" {
			continue
		}
		if err := g.AddEdge(key, d.Aggregate); err != nil {
			return fail("linking item job "+key, err)
		}
	}

	logger.Debug("Aggregation materialized.", "job", d.Aggregate, "items", len(identities))
	return nil
}
