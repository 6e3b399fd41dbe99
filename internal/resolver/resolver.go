package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/graph"
	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/template"
)

// Options configures a Resolver.
type Options struct {
	// Dir is the working directory relative paths are checked against.
	Dir string
	// Literal reports whether a path is declared by the configuration, e.g.
	// buildconfig.Config.IsLiteral. Nil means no declared literals.
	Literal func(path string) bool
}

// Resolver turns requested paths into a job graph.
type Resolver struct {
	reg  *template.Registry
	opts Options
}

// New creates a Resolver over the templates of reg.
func New(reg *template.Registry, opts Options) *Resolver {
	return &Resolver{reg: reg, opts: opts}
}

// walk is the state of one resolution pass.
type walk struct {
	g *graph.Graph
	// stack is the chain of job keys currently being resolved; visiting
	// maps a key to its position in it.
	stack    []string
	visiting map[string]int
}

// Resolve builds the graph needed to produce targets. Every target must be
// produced by a template; an external file is not a valid target.
func (r *Resolver) Resolve(ctx context.Context, targets []string) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &walk{g: graph.New(), visiting: make(map[string]int)}

	for _, target := range targets {
		t, b, err := r.reg.LookupByOutput(path.Clean(target))
		if err != nil {
			return nil, fmt.Errorf("resolving target %q: %w", target, err)
		}
		j, err := t.Instantiate(b)
		if err != nil {
			return nil, fmt.Errorf("resolving target %q: %w", target, err)
		}
		if _, err := r.resolveJob(ctx, w, t, j); err != nil {
			return nil, fmt.Errorf("resolving target %q: %w", target, err)
		}
	}

	logger.Debug("Graph resolved.", "targets", len(targets), "jobs", w.g.Len())
	return w.g, nil
}

// Extend resolves paths into an existing graph, adding the jobs that produce
// them. It returns one producer key per path, empty for an external input.
// Already present jobs are reused.
func (r *Resolver) Extend(ctx context.Context, g *graph.Graph, paths []string) ([]string, error) {
	w := &walk{g: g, visiting: make(map[string]int)}
	keys := make([]string, len(paths))
	for i, p := range paths {
		key, err := r.resolvePath(ctx, w, p, "")
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// resolvePath returns the key of the job producing p, or "" when p is an
// external input.
func (r *Resolver) resolvePath(ctx context.Context, w *walk, p, requestedBy string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p = path.Clean(p)

	// Items of a checkpoint directory are produced by the checkpoint.
	if owner, ok := w.g.ContainerOwner(p); ok {
		return owner, nil
	}

	t, b, err := r.reg.LookupByOutput(p)
	if err != nil {
		var noProducer *template.NoProducerError
		if !errors.As(err, &noProducer) {
			return "", err
		}
		if r.external(p) {
			ctxlog.FromContext(ctx).Debug("External input.", "path", p)
			return "", nil
		}
		noProducer.RequestedBy = requestedBy
		return "", noProducer
	}

	j, err := t.Instantiate(b)
	if err != nil {
		return "", err
	}
	return r.resolveJob(ctx, w, t, j)
}

func (r *Resolver) resolveJob(ctx context.Context, w *walk, t *template.Template, j *job.Job) (string, error) {
	key := j.Key()
	if i, ok := w.visiting[key]; ok {
		chain := append(slices.Clone(w.stack[i:]), key)
		return "", &CyclicDependencyError{Chain: chain}
	}
	if w.g.Has(key) {
		return key, nil
	}

	w.visiting[key] = len(w.stack)
	w.stack = append(w.stack, key)
	defer func() {
		w.stack = w.stack[:len(w.stack)-1]
		delete(w.visiting, key)
	}()

	var deps []string
	for _, in := range j.InputPaths() {
		dep, err := r.resolvePath(ctx, w, in, key)
		if err != nil {
			return "", err
		}
		if dep != "" {
			deps = append(deps, dep)
		}
	}

	var deferred *graph.Deferred
	if t.Gather != nil {
		cp, ok := r.reg.Get(t.Gather.Checkpoint)
		if !ok {
			return "", fmt.Errorf("template %q gathers from unknown template %q", t.Name, t.Gather.Checkpoint)
		}
		cpJob, err := cp.Instantiate(j.Binding)
		if err != nil {
			return "", err
		}
		cpKey, err := r.resolveJob(ctx, w, cp, cpJob)
		if err != nil {
			return "", err
		}
		deps = append(deps, cpKey)
		deferred = &graph.Deferred{
			Checkpoint: cpKey,
			Aggregate:  key,
			Binding:    j.Binding.Clone(),
			Dir:        path.Clean(cpJob.OutputPaths()[0]),
		}
	}

	w.g.Add(j)
	if j.Kind == job.KindCheckpoint {
		w.g.RegisterContainer(path.Clean(j.OutputPaths()[0]), key)
	}
	for _, dep := range deps {
		if err := w.g.AddEdge(dep, key); err != nil {
			return "", err
		}
	}
	if deferred != nil {
		w.g.AddDeferred(*deferred)
	}

	ctxlog.FromContext(ctx).Debug("Job resolved.", "job", key, "template", t.Name, "deps", len(deps))
	return key, nil
}

// external reports whether p is a configured literal or already on disk.
func (r *Resolver) external(p string) bool {
	if r.opts.Literal != nil && r.opts.Literal(p) {
		return true
	}
	full := filepath.FromSlash(p)
	if !filepath.IsAbs(full) && r.opts.Dir != "" {
		full = filepath.Join(r.opts.Dir, full)
	}
	_, err := os.Stat(full)
	return err == nil
}
