package wildcard

import (
	"maps"
	"slices"
	"strings"
)

// Binding is a concrete placeholder -> value assignment.
type Binding map[string]string

// Lookup resolves a placeholder that is not part of a Binding, typically from
// the literal file mapping of the build configuration.
type Lookup func(name string) (string, bool)

// Keys returns the placeholder names in sorted order.
func (b Binding) Keys() []string {
	return slices.Sorted(maps.Keys(b))
}

// With returns a copy of the binding extended with name=value.
func (b Binding) With(name, value string) Binding {
	out := make(Binding, len(b)+1)
	maps.Copy(out, b)
	out[name] = value
	return out
}

// Clone returns an independent copy of the binding.
func (b Binding) Clone() Binding {
	if b == nil {
		return Binding{}
	}
	return maps.Clone(b)
}

// String renders the binding as `k=v,k=v` in key order.
func (b Binding) String() string {
	var sb strings.Builder
	for i, k := range b.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b[k])
	}
	return sb.String()
}
