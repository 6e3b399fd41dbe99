package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/vk/phylogrid/internal/job"
)

// CyclicDependencyError reports a dependency cycle. Chain starts and ends
// with the same job key.
type CyclicDependencyError struct {
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Chain, " -> ")
}

// DetectCycles checks the graph for cycles, returning a
// *CyclicDependencyError describing the first one found.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited and known to be acyclic.
	// onStack: position of a key in the current DFS path.
	permanent := make(map[string]bool)
	onStack := make(map[string]int)
	var stack []string

	var visit func(key string) error
	visit = func(key string) error {
		if permanent[key] {
			return nil
		}
		if i, ok := onStack[key]; ok {
			chain := append(slices.Clone(stack[i:]), key)
			return &CyclicDependencyError{Chain: chain}
		}

		onStack[key] = len(stack)
		stack = append(stack, key)
		for _, next := range sortedKeys(g.nodes[key].dependents) {
			if err := visit(next); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, key)
		permanent[key] = true
		return nil
	}

	for _, key := range sortedKeys(g.nodes) {
		if err := visit(key); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns every job ordered by depth (longest path from a
// job without dependencies), ties broken by key. The order is deterministic
// for a given graph.
func (g *Graph) TopologicalOrder() ([]*job.Job, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	depth := make(map[string]int, len(g.nodes))
	var depthOf func(key string) int
	depthOf = func(key string) int {
		if d, ok := depth[key]; ok {
			return d
		}
		d := 0
		for dep := range g.nodes[key].deps {
			d = max(d, depthOf(dep)+1)
		}
		depth[key] = d
		return d
	}

	keys := sortedKeys(g.nodes)
	for _, k := range keys {
		depthOf(k)
	}
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(depth[a], depth[b])
	})

	out := make([]*job.Job, len(keys))
	for i, k := range keys {
		out[i] = g.nodes[k].job
	}
	return out, nil
}
