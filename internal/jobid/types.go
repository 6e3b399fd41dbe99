// internal/jobid/types.go
package jobid

// Param is a single key=value pair of a job identity.
type Param struct {
	Name  string
	Value string
}

// ID is the structured representation of a unique job identifier.
// Params are always sorted by Name.
type ID struct {
	Template string
	Params   []Param
}

// Binding returns the identity parameters as a fresh map.
func (id ID) Binding() map[string]string {
	out := make(map[string]string, len(id.Params))
	for _, p := range id.Params {
		out[p.Name] = p.Value
	}
	return out
}

// Value returns the value bound to name, if any.
func (id ID) Value(name string) (string, bool) {
	for _, p := range id.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// IsZero reports whether the identity is unset.
func (id ID) IsZero() bool {
	return id.Template == "" && len(id.Params) == 0
}
