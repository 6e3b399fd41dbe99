// Package notify publishes job state changes to a socket.io endpoint so a
// front end can follow a run live. Publishing is best effort: a lost event
// never affects the run.
package notify
