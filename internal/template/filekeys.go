package template

import (
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/phylogrid/internal/wildcard"
)

// FileKeys returns the placeholders of statically written input paths that
// are not wildcards of the template. Such placeholders can only be bound
// through the configured files mapping. Paths computed by function calls
// are not inspected.
func (t *Template) FileKeys() []string {
	if t.input == nil {
		return nil
	}
	own := t.Placeholders()
	var keys []string
	for _, s := range staticStrings(t.input) {
		p, err := wildcard.Parse(s, nil)
		if err != nil {
			continue
		}
		for _, name := range p.Names() {
			if !slices.Contains(own, name) && !slices.Contains(keys, name) {
				keys = append(keys, name)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// staticStrings collects the literal strings of an input expression, looking
// through objects, tuples and both branches of a conditional.
func staticStrings(expr hcl.Expression) []string {
	var out []string
	switch e := expr.(type) {
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			out = append(out, staticStrings(item.ValueExpr)...)
		}
	case *hclsyntax.TupleConsExpr:
		for _, ex := range e.Exprs {
			out = append(out, staticStrings(ex)...)
		}
	case *hclsyntax.ConditionalExpr:
		out = append(out, staticStrings(e.TrueResult)...)
		out = append(out, staticStrings(e.FalseResult)...)
	case *hclsyntax.TemplateExpr:
		if e.IsStringLiteral() {
			out = append(out, literalString(e)...)
		}
	case *hclsyntax.LiteralValueExpr:
		out = append(out, literalString(e)...)
	}
	return out
}

func literalString(expr hcl.Expression) []string {
	v, diags := expr.Value(nil)
	if diags.HasErrors() || v.IsNull() || !v.IsKnown() || v.Type() != cty.String {
		return nil
	}
	return []string{v.AsString()}
}
