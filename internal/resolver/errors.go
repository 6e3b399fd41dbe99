package resolver

import "github.com/vk/phylogrid/internal/graph"

// CyclicDependencyError reports the chain of job identities forming a cycle.
type CyclicDependencyError = graph.CyclicDependencyError
