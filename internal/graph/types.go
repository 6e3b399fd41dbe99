package graph

import (
	"sync"

	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/wildcard"
)

// Graph is a collection of jobs and their dependencies.
type Graph struct {
	// mutex protects every map below.
	mutex sync.RWMutex
	// nodes stores all jobs, keyed by their canonical identity.
	nodes map[string]*node
	// order is the insertion order of node keys.
	order []string
	// deferred maps a checkpoint key to the aggregations waiting on it.
	deferred map[string][]Deferred
	// containers maps a checkpoint output directory to the checkpoint key.
	containers map[string]string
}

// node is a single vertex. It is un-exported to enforce interaction through
// the public API using string keys.
type node struct {
	job        *job.Job
	deps       map[string]*node
	dependents map[string]*node
}

// Deferred is an edge from a checkpoint to an aggregation job whose inputs
// are only known once the checkpoint has run.
type Deferred struct {
	// Checkpoint is the key of the checkpoint job.
	Checkpoint string
	// Aggregate is the key of the placeholder aggregation job.
	Aggregate string
	// Binding is the aggregation job's binding, reused for every item.
	Binding wildcard.Binding
	// Dir is the checkpoint's output directory.
	Dir string
}
