// Package metrics exports job lifecycle counters for a run as Prometheus
// collectors. A Recorder is attached to the executor as an observer.
package metrics
