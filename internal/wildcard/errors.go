package wildcard

import "fmt"

// PatternMismatchError is returned when a concrete path cannot be matched by
// a pattern, or a binding value violates a placeholder constraint.
type PatternMismatchError struct {
	Pattern string
	Path    string
	Reason  string
}

func (e *PatternMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("path %q does not match pattern %q: %s", e.Path, e.Pattern, e.Reason)
	}
	return fmt.Sprintf("path %q does not match pattern %q", e.Path, e.Pattern)
}

// UnboundPlaceholderError is returned when a pattern is expanded and one of
// its placeholders has neither a binding value nor a lookup value.
type UnboundPlaceholderError struct {
	Pattern     string
	Placeholder string
}

func (e *UnboundPlaceholderError) Error() string {
	return fmt.Sprintf("placeholder {%s} in %q is not bound", e.Placeholder, e.Pattern)
}
