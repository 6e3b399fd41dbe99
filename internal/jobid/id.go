// internal/jobid/id.go
package jobid

import (
	"slices"
	"strings"
)

// New creates an identity from a template name and a binding. The binding
// is copied and sorted.
func New(template string, binding map[string]string) ID {
	id := ID{Template: template}
	for name, value := range binding {
		id.Params = append(id.Params, Param{Name: name, Value: value})
	}
	slices.SortFunc(id.Params, func(a, b Param) int {
		return strings.Compare(a.Name, b.Name)
	})
	return id
}

// String serializes the ID into its canonical string representation.
func (id ID) String() string {
	if len(id.Params) == 0 {
		return id.Template
	}

	var sb strings.Builder
	sb.WriteString(id.Template)
	sb.WriteByte('[')
	for i, p := range id.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeEscaped(&sb, p.Name)
		sb.WriteByte('=')
		writeEscaped(&sb, p.Value)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Equal checks for equality between two identities.
func (id ID) Equal(other ID) bool {
	return id.Template == other.Template && slices.Equal(id.Params, other.Params)
}

func writeEscaped(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '\\', ',', '=', ']':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
}
