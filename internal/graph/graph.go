package graph

import (
	"fmt"
	"slices"

	"github.com/vk/phylogrid/internal/job"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*node),
		deferred:   make(map[string][]Deferred),
		containers: make(map[string]string),
	}
}

// Add inserts a job. It returns false, leaving the graph unchanged, if a job
// with the same identity already exists.
func (g *Graph) Add(j *job.Job) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	key := j.Key()
	if _, ok := g.nodes[key]; ok {
		return false
	}
	g.nodes[key] = &node{
		job:        j,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, key)
	return true
}

// Replace swaps the job stored under j's identity, keeping its edges. It is
// how a placeholder becomes a materialized job.
func (g *Graph) Replace(j *job.Job) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n, ok := g.nodes[j.Key()]
	if !ok {
		return fmt.Errorf("job not found: %s", j.Key())
	}
	n.job = j
	return nil
}

// Job returns the job stored under key.
func (g *Graph) Job(key string) (*job.Job, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil, false
	}
	return n.job, true
}

// Has reports whether a job with the given key exists.
func (g *Graph) Has(key string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[key]
	return ok
}

// Len returns the number of jobs.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Jobs returns every job in insertion order.
func (g *Graph) Jobs() []*job.Job {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]*job.Job, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.nodes[key].job)
	}
	return out
}

// AddEdge creates a directed edge from `fromKey` to `toKey`, meaning toKey
// consumes an output of fromKey. Adding an existing edge is a no-op.
func (g *Graph) AddEdge(fromKey, toKey string) error {
	if fromKey == toKey {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromKey, fromKey)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	from, ok := g.nodes[fromKey]
	if !ok {
		return fmt.Errorf("source job not found: %s", fromKey)
	}
	to, ok := g.nodes[toKey]
	if !ok {
		return fmt.Errorf("destination job not found: %s", toKey)
	}

	to.deps[fromKey] = from
	from.dependents[toKey] = to
	return nil
}

// Dependencies returns the sorted keys of the jobs key depends on.
func (g *Graph) Dependencies(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", key)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted keys of the jobs that depend on key.
func (g *Graph) Dependents(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", key)
	}
	return sortedKeys(n.dependents), nil
}

// AddDeferred records that an aggregation job waits on a checkpoint's
// expansion.
func (g *Graph) AddDeferred(d Deferred) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, existing := range g.deferred[d.Checkpoint] {
		if existing.Aggregate == d.Aggregate {
			return
		}
	}
	g.deferred[d.Checkpoint] = append(g.deferred[d.Checkpoint], d)
}

// DeferredFrom returns the deferred edges leaving a checkpoint.
func (g *Graph) DeferredFrom(checkpointKey string) []Deferred {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.deferred[checkpointKey])
}

// RegisterContainer records that dir is the output directory of a
// checkpoint, so paths inside it resolve to that checkpoint.
func (g *Graph) RegisterContainer(dir, checkpointKey string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.containers[dir] = checkpointKey
}

// ContainerOwner returns the checkpoint whose output directory contains
// path, if any.
func (g *Graph) ContainerOwner(path string) (string, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	for dir := path; ; {
		parent := parentDir(dir)
		if parent == "" {
			return "", false
		}
		if key, ok := g.containers[parent]; ok {
			return key, true
		}
		dir = parent
	}
}

// parentDir returns the slash-separated parent of p, or "" at the top.
func parentDir(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
