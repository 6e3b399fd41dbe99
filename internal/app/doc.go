// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: load the build config
// and workflow, resolve requested targets into a job graph, and execute it,
// decoupled from any specific entrypoint like a CLI.
package app
