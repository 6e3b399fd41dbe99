// Package buildconfig loads and validates the build configuration tree: a
// set of regions, each with named subsampling schemes, plus a flat mapping
// of literal input files. It answers every configuration question the
// resolver asks (which subsamples a region has, which parameter a subsample
// carries, whether a subsample has a proximity priority) before any job is
// resolved, and exposes those answers to workflow expressions as functions.
//
// The region named "global" is a fixed special case: its tree is built from
// the full masked alignment directly, while every other region passes
// through the subsample and combine stages first. The distinction is keyed
// purely on the region name.
package buildconfig
