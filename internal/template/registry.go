package template

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vk/phylogrid/internal/wildcard"
)

// Registry holds the templates of one workflow and the environment they
// evaluate in. It is safe for concurrent lookups once populated.
type Registry struct {
	mu        sync.RWMutex
	env       Env
	templates map[string]*Template
}

// NewRegistry creates an empty registry evaluating in env.
func NewRegistry(env Env) *Registry {
	env.normalize()
	return &Registry{env: env, templates: make(map[string]*Template)}
}

// Register adds a template. Template names must be unique.
func (r *Registry) Register(t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name]; exists {
		return fmt.Errorf("template %q is already registered", t.Name)
	}
	t.registry = r
	r.templates[t.Name] = t
	return nil
}

// RegisterWorkflow registers every template of w and validates the result.
func (r *Registry) RegisterWorkflow(w *Workflow) error {
	for _, t := range w.Templates {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return r.Validate()
}

// Get returns a template by name.
func (r *Registry) Get(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Templates returns all templates sorted by name.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, name := range slices.Sorted(maps.Keys(r.templates)) {
		out = append(out, r.templates[name])
	}
	return out
}

// Lookup resolves a non-wildcard placeholder through the environment.
func (r *Registry) Lookup(name string) (string, bool) {
	return r.env.lookup(name)
}

// LookupByOutput finds the unique template with an output pattern matching
// path, returning the binding recovered from the match. Ambiguity between
// templates is only detected here, for the paths actually requested.
func (r *Registry) LookupByOutput(path string) (*Template, wildcard.Binding, error) {
	var (
		found    *Template
		binding  wildcard.Binding
		matching []string
	)
	for _, t := range r.Templates() {
		for _, o := range t.Outputs {
			b, err := o.Pattern.Match(path)
			if err != nil {
				continue
			}
			if found == nil {
				found, binding = t, b
			}
			matching = append(matching, t.Name)
			break
		}
	}

	switch len(matching) {
	case 0:
		return nil, nil, &NoProducerError{Path: path}
	case 1:
		return found, binding, nil
	default:
		return nil, nil, &DuplicateTemplateError{Path: path, Templates: matching}
	}
}

// Validate checks references between templates: every gather must name a
// registered checkpoint whose wildcards the gathering template provides.
func (r *Registry) Validate() error {
	var errs []error
	for _, t := range r.Templates() {
		if t.Gather == nil {
			continue
		}
		cp, ok := r.Get(t.Gather.Checkpoint)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("template %q gathers from unknown template %q", t.Name, t.Gather.Checkpoint))
			continue
		case !cp.Checkpoint:
			errs = append(errs, fmt.Errorf("template %q gathers from %q, which is not a checkpoint", t.Name, cp.Name))
			continue
		}
		own := t.Placeholders()
		for _, name := range cp.Placeholders() {
			if !slices.Contains(own, name) {
				errs = append(errs, fmt.Errorf("template %q cannot bind checkpoint %q: missing wildcard {%s}", t.Name, cp.Name, name))
			}
		}
		for _, name := range t.Gather.Input.Names() {
			if name != t.Gather.Identity() && !slices.Contains(own, name) {
				errs = append(errs, fmt.Errorf("template %q: gather input uses unknown wildcard {%s}", t.Name, name))
			}
		}
	}
	return errors.Join(errs...)
}
