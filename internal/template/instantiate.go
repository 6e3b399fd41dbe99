package template

import (
	"fmt"
	"math"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/jobid"
	"github.com/vk/phylogrid/internal/wildcard"
)

// Instantiate binds the template into a concrete job. The binding must carry
// a value for every template placeholder; extra keys are ignored. For a
// gather template the result is a placeholder aggregation job.
func (t *Template) Instantiate(b wildcard.Binding) (*job.Job, error) {
	return t.build(b, nil, t.Gather != nil)
}

// Materialize builds the aggregation job of a gather template once the
// per-item input paths are known. An empty itemPaths is valid.
func (t *Template) Materialize(b wildcard.Binding, itemPaths []string) (*job.Job, error) {
	if t.Gather == nil {
		return nil, fmt.Errorf("template %q has no gather block", t.Name)
	}
	return t.build(b, itemPaths, false)
}

func (t *Template) env() *Env {
	if t.registry == nil {
		e := &Env{}
		e.normalize()
		return e
	}
	return &t.registry.env
}

// Binding restricts b to the template's placeholders, validating that every
// placeholder is bound and satisfies its constraint.
func (t *Template) Binding(b wildcard.Binding) (wildcard.Binding, error) {
	out := make(wildcard.Binding)
	for _, name := range t.Placeholders() {
		v, ok := b[name]
		if !ok {
			return nil, &wildcard.UnboundPlaceholderError{Pattern: t.Outputs[0].Pattern.String(), Placeholder: name}
		}
		out[name] = v
	}
	for _, o := range t.Outputs {
		if err := o.Pattern.Validate(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *Template) build(raw wildcard.Binding, items []string, placeholder bool) (*job.Job, error) {
	b, err := t.Binding(raw)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, err)
	}
	env := t.env()
	id := jobid.New(t.Name, b)
	wrap := func(err error) error {
		return fmt.Errorf("instantiating %s: %w", id, err)
	}

	j := &job.Job{
		ID:            id,
		Template:      t.Name,
		Binding:       b,
		Kind:          job.KindRule,
		IsPlaceholder: placeholder,
		Threads:       1,
		Retries:       t.Retries,
		MemoryExpr:    t.memSrc,
	}
	switch {
	case t.Checkpoint:
		j.Kind = job.KindCheckpoint
	case t.Gather != nil:
		j.Kind = job.KindAggregate
	}

	locals := map[string]cty.Value{"wildcards": bindingValue(b)}

	// Inputs first: later expressions may refer to them.
	inVal := cty.NullVal(cty.DynamicPseudoType)
	if t.input != nil {
		v, diags := t.input.Value(env.evalContext(locals))
		if diags.HasErrors() {
			return nil, wrap(diagErr(diags))
		}
		inVal = v
	}
	inVal, j.Inputs, err = expandPaths(inVal, b, env.lookup)
	if err != nil {
		return nil, wrap(err)
	}
	if t.Gather != nil {
		if inVal, err = t.addItems(inVal, j, items); err != nil {
			return nil, wrap(err)
		}
	}
	locals["input"] = inVal

	outVal, err := t.expandOutputs(j, b)
	if err != nil {
		return nil, wrap(err)
	}
	locals["output"] = outVal

	if t.params != nil {
		v, diags := t.params.Value(env.evalContext(locals))
		if diags.HasErrors() {
			return nil, wrap(diagErr(diags))
		}
		params, pv, err := paramsMap(v)
		if err != nil {
			return nil, wrap(err)
		}
		j.Params = params
		locals["params"] = pv
	} else {
		j.Params = map[string]string{}
		locals["params"] = cty.EmptyObjectVal
	}

	if t.threads != nil {
		v, diags := t.threads.Value(env.evalContext(locals))
		if diags.HasErrors() {
			return nil, wrap(diagErr(diags))
		}
		if err := gocty.FromCtyValue(v, &j.Threads); err != nil {
			return nil, wrap(fmt.Errorf("threads: %w", err))
		}
		if j.Threads < 1 {
			return nil, wrap(fmt.Errorf("threads must be at least 1, got %d", j.Threads))
		}
	}
	locals["threads"] = cty.NumberIntVal(int64(j.Threads))

	if t.memory != nil {
		j.Memory = memoryFunc(t.memory, env, locals)
	}

	if placeholder {
		return j, nil
	}

	v, diags := t.command.Value(env.evalContext(locals))
	if diags.HasErrors() {
		return nil, wrap(diagErr(diags))
	}
	if j.Command, err = argv(v); err != nil {
		return nil, wrap(err)
	}
	return j, nil
}

// addItems places the per-item paths under the gather slot.
func (t *Template) addItems(inVal cty.Value, j *job.Job, items []string) (cty.Value, error) {
	if !inVal.Type().IsObjectType() {
		return cty.NilVal, fmt.Errorf("a gather rule's input must be an object or omitted")
	}
	attrs := inVal.AsValueMap()
	if attrs == nil {
		attrs = map[string]cty.Value{}
	}
	if _, clash := attrs[t.Gather.As]; clash {
		return cty.NilVal, fmt.Errorf("input %q collides with the gather slot", t.Gather.As)
	}
	attrs[t.Gather.As] = stringList(items)
	j.Gather = t.Gather.As
	j.Inputs = append(j.Inputs, job.NamedPaths{Name: t.Gather.As, Paths: slices.Clone(items), Multi: true})
	return cty.ObjectVal(attrs), nil
}

func (t *Template) expandOutputs(j *job.Job, b wildcard.Binding) (cty.Value, error) {
	attrs := make(map[string]cty.Value, len(t.Outputs))
	for _, o := range t.Outputs {
		path, err := o.Pattern.Expand(b, nil)
		if err != nil {
			return cty.NilVal, err
		}
		j.Outputs = append(j.Outputs, job.NamedPaths{Name: o.Name, Paths: []string{path}})
		attrs[o.Name] = cty.StringVal(path)
	}
	if t.singleOutput {
		return attrs[""], nil
	}
	return cty.ObjectVal(attrs), nil
}

// memoryFunc defers evaluation of a memory expression until the executor
// knows the input size.
func memoryFunc(expr hcl.Expression, env *Env, locals map[string]cty.Value) job.MemoryFunc {
	return func(inputSizeMB float64) (int64, error) {
		vars := make(map[string]cty.Value, len(locals)+1)
		for k, v := range locals {
			vars[k] = v
		}
		vars["input_size_mb"] = cty.NumberFloatVal(inputSizeMB)

		v, diags := expr.Value(env.evalContext(vars))
		if diags.HasErrors() {
			return 0, fmt.Errorf("memory_mb: %w", diagErr(diags))
		}
		var mb float64
		if err := gocty.FromCtyValue(v, &mb); err != nil {
			return 0, fmt.Errorf("memory_mb: %w", err)
		}
		if mb < 0 {
			return 0, fmt.Errorf("memory_mb must not be negative, got %v", mb)
		}
		return int64(math.Ceil(mb)), nil
	}
}

// evalError keeps the error a config function returned reachable through
// errors.As, which hcl.Diagnostics alone does not allow.
type evalError struct {
	diags hcl.Diagnostics
	cause error
}

func (e *evalError) Error() string { return e.diags.Error() }
func (e *evalError) Unwrap() error { return e.cause }

func diagErr(diags hcl.Diagnostics) error {
	for _, d := range diags {
		extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](d)
		if ok && extra.FunctionCallError() != nil {
			return &evalError{diags: diags, cause: extra.FunctionCallError()}
		}
	}
	return diags
}
