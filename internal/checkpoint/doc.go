// Package checkpoint expands the graph after a checkpoint job succeeds.
//
// A checkpoint's output is a directory whose contents are unknown before it
// runs. Aggregation jobs that gather over it sit in the graph as
// placeholders. Once the checkpoint is done, the expander lists the
// directory, derives one identity per item, resolves the per-item jobs into
// the live graph and materializes each aggregation with exactly those
// per-item outputs as inputs.
package checkpoint
