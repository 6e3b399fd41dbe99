// Package job defines the concrete unit of work in the job graph: a template
// instantiated with a wildcard binding.
package job

import (
	"github.com/vk/phylogrid/internal/jobid"
	"github.com/vk/phylogrid/internal/wildcard"
)

// Kind distinguishes how the executor treats a job.
type Kind int

const (
	// KindRule is an ordinary job with statically known outputs.
	KindRule Kind = iota
	// KindCheckpoint is a job whose single output is a directory of items
	// that is only known after it runs.
	KindCheckpoint
	// KindAggregate gathers the per-item outputs of a checkpoint. It is a
	// placeholder until the checkpoint has been expanded.
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindRule:
		return "rule"
	case KindCheckpoint:
		return "checkpoint"
	case KindAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// NamedPaths is one named input or output slot with its concrete paths.
// Multi is true when the slot was declared as a list, so that an empty list
// is still a legitimate value.
type NamedPaths struct {
	Name  string
	Paths []string
	Multi bool
}

// MemoryFunc estimates a job's memory requirement in megabytes from the
// total size of its inputs in megabytes.
type MemoryFunc func(inputSizeMB float64) (int64, error)

// Job is a single vertex in the job graph. A Job is immutable once
// constructed; expanding a placeholder produces a new Job with the same ID.
type Job struct {
	// ID is the canonical identity: template name plus sorted binding.
	ID jobid.ID
	// Template is the name of the template the job was instantiated from.
	Template string
	// Binding is the wildcard binding the job was instantiated with.
	Binding wildcard.Binding
	Kind    Kind

	// IsPlaceholder is true for an aggregation job whose inputs depend on a
	// checkpoint that has not yet run. Such jobs are never scheduled until
	// the checkpoint expander replaces them.
	IsPlaceholder bool
	// Gather names the input slot holding the per-item paths of an
	// aggregation job.
	Gather string

	Inputs  []NamedPaths
	Outputs []NamedPaths
	Params  map[string]string
	Command []string

	Threads    int
	Memory     MemoryFunc
	MemoryExpr string
	Retries    int
}

// Key returns the canonical string representation of the job identity.
func (j *Job) Key() string {
	return j.ID.String()
}

// InputPaths returns every input path in declaration order.
func (j *Job) InputPaths() []string {
	return flatten(j.Inputs)
}

// OutputPaths returns every output path in declaration order.
func (j *Job) OutputPaths() []string {
	return flatten(j.Outputs)
}

// Input returns the paths of the named input slot.
func (j *Job) Input(name string) ([]string, bool) {
	for _, in := range j.Inputs {
		if in.Name == name {
			return in.Paths, true
		}
	}
	return nil, false
}

// EmptyAggregation reports whether j is a materialized aggregation over a
// checkpoint that produced no items.
func (j *Job) EmptyAggregation() bool {
	if j.Kind != KindAggregate || j.IsPlaceholder {
		return false
	}
	items, _ := j.Input(j.Gather)
	return len(items) == 0
}

// EstimateMemoryMB evaluates the job's memory expression. Jobs without one
// need no memory budget.
func (j *Job) EstimateMemoryMB(inputSizeMB float64) (int64, error) {
	if j.Memory == nil {
		return 0, nil
	}
	return j.Memory(inputSizeMB)
}

func flatten(slots []NamedPaths) []string {
	var out []string
	for _, s := range slots {
		out = append(out, s.Paths...)
	}
	return out
}
