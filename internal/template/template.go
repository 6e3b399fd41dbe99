package template

import (
	"slices"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/phylogrid/internal/wildcard"
)

// Output is one named output pattern. Name is empty when the rule declares
// a single unnamed output.
type Output struct {
	Name    string
	Pattern *wildcard.Pattern
}

// Gather describes an aggregation over the items of a checkpoint directory.
type Gather struct {
	// Checkpoint is the name of the checkpoint template.
	Checkpoint string
	// Item matches an item path relative to the checkpoint directory and
	// binds exactly one placeholder, the item identity.
	Item *wildcard.Pattern
	// Input is the per-item path the aggregation consumes, e.g.
	// `results/split_alignments/{i}.fasta`.
	Input *wildcard.Pattern
	// As is the input slot the per-item paths are placed under.
	As string
}

// Identity returns the placeholder the item pattern binds.
func (g *Gather) Identity() string {
	return g.Item.Names()[0]
}

// Template is a parameterized job description.
type Template struct {
	Name       string
	Outputs    []Output
	Checkpoint bool
	Retries    int
	Gather     *Gather

	// singleOutput is true when the output was declared as a plain string.
	singleOutput bool

	input    hcl.Expression
	params   hcl.Expression
	threads  hcl.Expression
	memory   hcl.Expression
	command  hcl.Expression
	memSrc   string
	declRng  hcl.Range
	registry *Registry
}

// Placeholders returns the template's wildcard names, shared by all of its
// output patterns.
func (t *Template) Placeholders() []string {
	if len(t.Outputs) == 0 {
		return nil
	}
	names := t.Outputs[0].Pattern.Names()
	slices.Sort(names)
	return names
}

// OutputPatterns returns the raw output patterns in declaration order.
func (t *Template) OutputPatterns() []string {
	out := make([]string, len(t.Outputs))
	for i, o := range t.Outputs {
		out[i] = o.Pattern.String()
	}
	return out
}

// DeclRange is the source range of the rule block.
func (t *Template) DeclRange() hcl.Range {
	return t.declRng
}
