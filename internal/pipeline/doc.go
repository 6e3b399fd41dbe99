// Package pipeline binds a workflow to a build configuration. It embeds the
// default SARS-CoV-2 workflow, used when no workflow files are given.
package pipeline
