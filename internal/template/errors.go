package template

import (
	"fmt"
	"strings"
)

// NoProducerError is returned when no template can produce a path and the
// path is not an external input.
type NoProducerError struct {
	Path string
	// RequestedBy is the identity of the job that needed the path, empty
	// for a requested target.
	RequestedBy string
}

func (e *NoProducerError) Error() string {
	if e.RequestedBy != "" {
		return fmt.Sprintf("no template produces %q (required by %s)", e.Path, e.RequestedBy)
	}
	return fmt.Sprintf("no template produces %q", e.Path)
}

// DuplicateTemplateError is returned when more than one template matches a
// concrete output path.
type DuplicateTemplateError struct {
	Path      string
	Templates []string
}

func (e *DuplicateTemplateError) Error() string {
	return fmt.Sprintf("output %q is ambiguous: produced by templates %s", e.Path, strings.Join(e.Templates, ", "))
}
