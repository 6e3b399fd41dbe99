package buildconfig

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Value returns the configuration as the `config` variable of workflow
// expressions: config.files.<name> and config.regions.
func (c *Config) Value() cty.Value {
	files := cty.MapValEmpty(cty.String)
	if len(c.Files) > 0 {
		m := make(map[string]cty.Value, len(c.Files))
		for k, v := range c.Files {
			m[k] = cty.StringVal(v)
		}
		files = cty.MapVal(m)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"files":   files,
		"regions": stringList(c.Regions()),
	})
}

// Functions returns the configuration functions available to workflow
// expressions. Every call is answered from the loaded tree, so conditional
// edges are decided when a job is instantiated, never during execution.
func (c *Config) Functions() map[string]function.Function {
	str := func(name string) function.Parameter {
		return function.Parameter{Name: name, Type: cty.String}
	}

	return map[string]function.Function{
		// subsamples(region) -> list of subsample names
		"subsamples": function.New(&function.Spec{
			Params: []function.Parameter{str("region")},
			Type:   function.StaticReturnType(cty.List(cty.String)),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				names, err := c.SubsampleNames(args[0].AsString())
				if err != nil {
					return cty.NilVal, err
				}
				return stringList(names), nil
			},
		}),

		// subsample_param(region, subsample, key) -> string
		"subsample_param": function.New(&function.Spec{
			Params: []function.Parameter{str("region"), str("subsample"), str("key")},
			Type:   function.StaticReturnType(cty.String),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				v, err := c.Param(args[0].AsString(), args[1].AsString(), args[2].AsString())
				if err != nil {
					return cty.NilVal, err
				}
				return cty.StringVal(v), nil
			},
		}),

		// priority_inputs(region, subsample, pattern) -> [] or [pattern with
		// {focus} replaced by the subsample's proximity focus]
		"priority_inputs": function.New(&function.Spec{
			Params: []function.Parameter{str("region"), str("subsample"), str("pattern")},
			Type:   function.StaticReturnType(cty.List(cty.String)),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				focus, ok, err := c.PriorityFocus(args[0].AsString(), args[1].AsString())
				if err != nil {
					return cty.NilVal, err
				}
				if !ok {
					return cty.ListValEmpty(cty.String), nil
				}
				return cty.ListVal([]cty.Value{
					cty.StringVal(strings.ReplaceAll(args[2].AsString(), "{focus}", focus)),
				}), nil
			},
		}),

		// region_kind(region) -> "global" | "subsampled"
		"region_kind": function.New(&function.Spec{
			Params: []function.Parameter{str("region")},
			Type:   function.StaticReturnType(cty.String),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.StringVal(string(c.RegionKind(args[0].AsString()))), nil
			},
		}),

		// subsample_outputs(region, pattern) -> pattern with {subsample}
		// replaced by every subsample of the region
		"subsample_outputs": function.New(&function.Spec{
			Params: []function.Parameter{str("region"), str("pattern")},
			Type:   function.StaticReturnType(cty.List(cty.String)),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				names, err := c.SubsampleNames(args[0].AsString())
				if err != nil {
					return cty.NilVal, err
				}
				out := make([]string, 0, len(names))
				for _, n := range names {
					out = append(out, strings.ReplaceAll(args[1].AsString(), "{subsample}", n))
				}
				return stringList(out), nil
			},
		}),
	}
}

func stringList(items []string) cty.Value {
	if len(items) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
