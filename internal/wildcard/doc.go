/*
Package wildcard implements `{placeholder}` path patterns.

A pattern such as `results/{region}/sample-{subsample}.fasta` is matched
against concrete paths to recover a Binding (placeholder -> value), and
expanded back into a concrete path from a Binding. Text outside braces is
literal. Each placeholder matches one or more characters of its constraint
regex, `[^/]+` unless a constraint is supplied for that name.
*/
package wildcard
