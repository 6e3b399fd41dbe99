// Package graph provides the live job graph: an arena of jobs keyed by
// identity with producer -> consumer edges.
//
// Besides ordinary edges the graph records deferred edges: a placeholder
// aggregation job waits on a checkpoint whose outputs are unknown until it
// runs. The checkpoint expander consumes these records and inserts new jobs
// into the still-live graph. All operations are concurrency-safe.
package graph
