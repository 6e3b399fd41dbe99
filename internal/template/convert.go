package template

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/wildcard"
)

func isSequence(ty cty.Type) bool {
	return ty.IsListType() || ty.IsTupleType() || ty.IsSetType()
}

func isMapping(ty cty.Type) bool {
	return ty.IsObjectType() || ty.IsMapType()
}

// scalarString renders a primitive value as a string.
func scalarString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("unexpected null value")
	}
	if !v.Type().IsPrimitiveType() {
		return "", fmt.Errorf("expected a string, number, or bool, got %s", v.Type().FriendlyName())
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
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

// expandPaths walks an input value, expanding placeholders in every string.
// It returns the expanded value, in the same shape, for use by later
// expressions, and the flattened slots for the job.
func expandPaths(v cty.Value, b wildcard.Binding, lookup wildcard.Lookup) (cty.Value, []job.NamedPaths, error) {
	if v.IsNull() {
		return cty.EmptyObjectVal, nil, nil
	}
	ty := v.Type()
	switch {
	case ty.IsPrimitiveType() || isSequence(ty):
		ev, slot, err := expandSlot("", v, b, lookup)
		if err != nil {
			return cty.NilVal, nil, err
		}
		return ev, []job.NamedPaths{slot}, nil
	case isMapping(ty):
		m := v.AsValueMap()
		attrs := make(map[string]cty.Value, len(m))
		var slots []job.NamedPaths
		for _, name := range slices.Sorted(maps.Keys(m)) {
			if m[name].IsNull() {
				continue
			}
			ev, slot, err := expandSlot(name, m[name], b, lookup)
			if err != nil {
				return cty.NilVal, nil, err
			}
			attrs[name] = ev
			slots = append(slots, slot)
		}
		return cty.ObjectVal(attrs), slots, nil
	default:
		return cty.NilVal, nil, fmt.Errorf("input must be a string, a list of strings, or an object of those, got %s", ty.FriendlyName())
	}
}

func expandSlot(name string, v cty.Value, b wildcard.Binding, lookup wildcard.Lookup) (cty.Value, job.NamedPaths, error) {
	slot := job.NamedPaths{Name: name}
	if v.Type().IsPrimitiveType() {
		raw, err := scalarString(v)
		if err != nil {
			return cty.NilVal, slot, fmt.Errorf("input %q: %w", name, err)
		}
		path, err := wildcard.Expand(raw, b, lookup)
		if err != nil {
			return cty.NilVal, slot, fmt.Errorf("input %q: %w", name, err)
		}
		slot.Paths = []string{path}
		return cty.StringVal(path), slot, nil
	}
	if !isSequence(v.Type()) {
		return cty.NilVal, slot, fmt.Errorf("input %q must be a string or a list of strings, got %s", name, v.Type().FriendlyName())
	}

	slot.Multi = true
	for _, el := range v.AsValueSlice() {
		if el.IsNull() {
			continue
		}
		raw, err := scalarString(el)
		if err != nil {
			return cty.NilVal, slot, fmt.Errorf("input %q: %w", name, err)
		}
		path, err := wildcard.Expand(raw, b, lookup)
		if err != nil {
			return cty.NilVal, slot, fmt.Errorf("input %q: %w", name, err)
		}
		slot.Paths = append(slot.Paths, path)
	}
	return stringList(slot.Paths), slot, nil
}

// paramsMap flattens a params object into strings. Lists are joined with
// spaces and null becomes the empty string.
func paramsMap(v cty.Value) (map[string]string, cty.Value, error) {
	out := map[string]string{}
	if v.IsNull() {
		return out, cty.EmptyObjectVal, nil
	}
	if !isMapping(v.Type()) {
		return nil, cty.NilVal, fmt.Errorf("params must be an object, got %s", v.Type().FriendlyName())
	}

	attrs := map[string]cty.Value{}
	for name, el := range v.AsValueMap() {
		var s string
		switch {
		case el.IsNull():
		case isSequence(el.Type()):
			var parts []string
			for _, item := range el.AsValueSlice() {
				p, err := scalarString(item)
				if err != nil {
					return nil, cty.NilVal, fmt.Errorf("param %q: %w", name, err)
				}
				parts = append(parts, p)
			}
			s = strings.Join(parts, " ")
		default:
			p, err := scalarString(el)
			if err != nil {
				return nil, cty.NilVal, fmt.Errorf("param %q: %w", name, err)
			}
			s = p
		}
		out[name] = s
		attrs[name] = cty.StringVal(s)
	}
	return out, cty.ObjectVal(attrs), nil
}

// argv flattens a command value into arguments. One level of nested lists
// is spliced in place and null elements are dropped, so optional flags can
// be written as conditionals.
func argv(v cty.Value) ([]string, error) {
	if v.IsNull() || !isSequence(v.Type()) {
		return nil, fmt.Errorf("command must be a list of arguments")
	}

	var args []string
	for _, el := range v.AsValueSlice() {
		if el.IsNull() {
			continue
		}
		if isSequence(el.Type()) {
			for _, inner := range el.AsValueSlice() {
				if inner.IsNull() {
					continue
				}
				s, err := scalarString(inner)
				if err != nil {
					return nil, fmt.Errorf("command argument: %w", err)
				}
				args = append(args, s)
			}
			continue
		}
		s, err := scalarString(el)
		if err != nil {
			return nil, fmt.Errorf("command argument: %w", err)
		}
		args = append(args, s)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command must not be empty")
	}
	return args, nil
}

func bindingValue(b wildcard.Binding) cty.Value {
	attrs := make(map[string]cty.Value, len(b))
	for k, v := range b {
		attrs[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(attrs)
}
