package template

import (
	"maps"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/vk/phylogrid/internal/wildcard"
)

// Env is the evaluation environment shared by every template of a registry.
type Env struct {
	// Variables are global expression variables, e.g. `config`.
	Variables map[string]cty.Value
	// Functions are merged over the built-in function set.
	Functions map[string]function.Function
	// Lookup resolves placeholders that are not wildcards, e.g. `{reference}`.
	Lookup wildcard.Lookup
}

// builtinFunctions is the general-purpose function set every workflow sees.
func builtinFunctions() map[string]function.Function {
	return map[string]function.Function{
		"ceil":     stdlib.CeilFunc,
		"coalesce": stdlib.CoalesceFunc,
		"concat":   stdlib.ConcatFunc,
		"contains": stdlib.ContainsFunc,
		"floor":    stdlib.FloorFunc,
		"format":   stdlib.FormatFunc,
		"join":     stdlib.JoinFunc,
		"length":   stdlib.LengthFunc,
		"lookup":   stdlib.LookupFunc,
		"lower":    stdlib.LowerFunc,
		"max":      stdlib.MaxFunc,
		"min":      stdlib.MinFunc,
		"replace":  stdlib.ReplaceFunc,
		"split":    stdlib.SplitFunc,
		"upper":    stdlib.UpperFunc,
	}
}

func (e *Env) normalize() {
	fns := builtinFunctions()
	maps.Copy(fns, e.Functions)
	e.Functions = fns
	if e.Variables == nil {
		e.Variables = map[string]cty.Value{}
	}
}

// evalContext layers job-local variables over the environment's globals.
func (e *Env) evalContext(locals map[string]cty.Value) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(e.Variables)+len(locals))
	maps.Copy(vars, e.Variables)
	maps.Copy(vars, locals)
	return &hcl.EvalContext{Variables: vars, Functions: e.Functions}
}

func (e *Env) lookup(name string) (string, bool) {
	if e.Lookup == nil {
		return "", false
	}
	return e.Lookup(name)
}
