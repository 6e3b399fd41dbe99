// Package resolver builds the job graph backward from requested outputs.
//
// Resolution is a depth-first walk: each concrete path is mapped to the one
// template producing it, the template is instantiated with the recovered
// binding, and the job's own inputs are resolved in turn. Jobs are shared
// by identity, so a common ancestor appears once. Paths no template
// produces are accepted as external inputs when the configuration declares
// them or they already exist on disk.
//
// The resolver never runs anything. Its only side effects on the outside
// world are stat calls.
package resolver
