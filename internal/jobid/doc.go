// internal/jobid/doc.go

/*
Package jobid provides a structured, type-safe representation for job
identifiers, based on the canonical format `template[key=value,...]`.

An identity is the template name plus its sorted wildcard binding, e.g.
`subsample[region=swiss,subsample=europe]`. A job without placeholders is
identified by its bare template name, e.g. `mask`. Inside the brackets the
characters `\`, `,`, `=`, and `]` are escaped with a backslash.

Two jobs with equal identities are the same job; the resolver relies on
this to deduplicate shared ancestors.
*/
package jobid
