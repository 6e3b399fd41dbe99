// Package executor runs a job graph.
//
// A single coordinating loop owns every job state. It promotes jobs whose
// producers all succeeded, skips those whose outputs are already fresh and
// hands the rest to a bounded pool of workers. Workers hold thread and
// memory budget for the duration of a job and report completions back on a
// channel. After a checkpoint succeeds the coordinator expands the graph
// before promoting anything else.
//
// With the default KeepGoing policy a failure only cancels the failed job's
// dependents. AbortOnFailure cancels running jobs as well.
package executor
