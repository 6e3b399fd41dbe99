package template

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/fsutil"
	"github.com/vk/phylogrid/internal/wildcard"
)

// Workflow is the parsed content of one or more workflow files.
type Workflow struct {
	Templates []*Template
	// Targets are the default requested output patterns, if declared.
	Targets []string
	// Constraints are the workflow-level wildcard constraints.
	Constraints map[string]string
}

// fileRoot decodes all top-level constructs of a workflow file.
type fileRoot struct {
	Targets     []string          `hcl:"targets,optional"`
	Constraints *constraintsBlock `hcl:"wildcard_constraints,block"`
	Rules       []*ruleBlock      `hcl:"rule,block"`
}

type constraintsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type ruleBlock struct {
	Name        string            `hcl:"name,label"`
	Output      hcl.Expression    `hcl:"output"`
	Input       hcl.Expression    `hcl:"input,optional"`
	Params      hcl.Expression    `hcl:"params,optional"`
	Threads     hcl.Expression    `hcl:"threads,optional"`
	MemoryMB    hcl.Expression    `hcl:"memory_mb,optional"`
	Retries     int               `hcl:"retries,optional"`
	Checkpoint  bool              `hcl:"checkpoint,optional"`
	Command     hcl.Expression    `hcl:"command"`
	Constraints *constraintsBlock `hcl:"wildcard_constraints,block"`
	Gather      *gatherBlock      `hcl:"gather,block"`
	DeclRange   hcl.Range         `hcl:",def_range"`
}

type gatherBlock struct {
	Checkpoint string `hcl:"checkpoint"`
	Item       string `hcl:"item"`
	Input      string `hcl:"input"`
	As         string `hcl:"as,optional"`
}

// LoadFiles parses every .hcl file found under the given paths (files or
// directories) into one workflow.
func LoadFiles(ctx context.Context, paths ...string) (*Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Workflow loader started.", "path_count", len(paths))

	var files []string
	seen := make(map[string]bool)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("error accessing workflow path %s: %w", p, err)
		}
		found := []string{p}
		if info.IsDir() {
			if found, err = fsutil.FindFilesByExtension(p, ".hcl"); err != nil {
				return nil, err
			}
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	merged := &Workflow{Constraints: map[string]string{}}
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow %s: %w", f, err)
		}
		w, err := Parse(src, filepath.ToSlash(f))
		if err != nil {
			return nil, err
		}
		merged.Templates = append(merged.Templates, w.Templates...)
		merged.Targets = append(merged.Targets, w.Targets...)
		maps.Copy(merged.Constraints, w.Constraints)
	}

	logger.Debug("Workflow loading complete.", "templates", len(merged.Templates), "targets", len(merged.Targets))
	return merged, nil
}

// Parse decodes one workflow file. Output patterns and gather patterns are
// compiled here, so malformed placeholders are reported at load time.
func Parse(src []byte, filename string) (*Workflow, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", filename, diags)
	}

	global, err := decodeConstraints(root.Constraints)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", filename, err)
	}

	w := &Workflow{Targets: root.Targets, Constraints: global}
	for _, rb := range root.Rules {
		t, err := translateRule(rb, global, src)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: rule %q: %w", filename, rb.Name, err)
		}
		w.Templates = append(w.Templates, t)
	}
	return w, nil
}

func decodeConstraints(b *constraintsBlock) (map[string]string, error) {
	out := make(map[string]string)
	if b == nil {
		return out, nil
	}
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	for name, attr := range attrs {
		var re string
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &re); diags.HasErrors() {
			return nil, fmt.Errorf("wildcard constraint %q: %w", name, diags)
		}
		out[name] = re
	}
	return out, nil
}

func translateRule(rb *ruleBlock, global map[string]string, src []byte) (*Template, error) {
	local, err := decodeConstraints(rb.Constraints)
	if err != nil {
		return nil, err
	}
	constraints := maps.Clone(global)
	maps.Copy(constraints, local)

	t := &Template{
		Name:       rb.Name,
		Checkpoint: rb.Checkpoint,
		Retries:    rb.Retries,
		declRng:    rb.DeclRange,
	}
	if rb.Retries < 0 {
		return nil, fmt.Errorf("retries must not be negative")
	}

	if err := t.translateOutputs(rb.Output, constraints); err != nil {
		return nil, err
	}
	if t.Checkpoint && (len(t.Outputs) != 1) {
		return nil, fmt.Errorf("a checkpoint must declare exactly one directory output")
	}

	if isExprDefined(rb.Input) {
		t.input = rb.Input
	}
	if isExprDefined(rb.Params) {
		t.params = rb.Params
	}
	if isExprDefined(rb.Threads) {
		t.threads = rb.Threads
	}
	if isExprDefined(rb.MemoryMB) {
		t.memory = rb.MemoryMB
		t.memSrc = string(rb.MemoryMB.Range().SliceBytes(src))
	}
	if !isExprDefined(rb.Command) {
		return nil, fmt.Errorf("command must not be null")
	}
	t.command = rb.Command

	if rb.Gather != nil {
		if t.Checkpoint {
			return nil, fmt.Errorf("a checkpoint cannot also gather")
		}
		g, err := translateGather(rb.Gather, t.Placeholders(), constraints)
		if err != nil {
			return nil, fmt.Errorf("gather: %w", err)
		}
		t.Gather = g
	}
	return t, nil
}

func (t *Template) translateOutputs(expr hcl.Expression, constraints map[string]string) error {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("output must be a static string or object of strings: %w", diags)
	}

	raw := make(map[string]string)
	switch {
	case val.IsNull():
		return fmt.Errorf("output must not be null")
	case val.Type() == cty.String:
		t.singleOutput = true
		raw[""] = val.AsString()
	case val.Type().IsObjectType() || val.Type().IsMapType():
		for name, v := range val.AsValueMap() {
			if v.IsNull() || v.Type() != cty.String {
				return fmt.Errorf("output %q must be a string", name)
			}
			raw[name] = v.AsString()
		}
		if len(raw) == 0 {
			return fmt.Errorf("at least one output is required")
		}
	default:
		return fmt.Errorf("output must be a string or object of strings, got %s", val.Type().FriendlyName())
	}

	var first []string
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		p, err := wildcard.Parse(raw[name], constraints)
		if err != nil {
			return err
		}
		names := p.Names()
		slices.Sort(names)
		if first == nil {
			first = names
		} else if !slices.Equal(first, names) {
			return fmt.Errorf("all outputs must use the same placeholders: %q uses %v, expected %v", p, names, first)
		}
		t.Outputs = append(t.Outputs, Output{Name: name, Pattern: p})
	}
	return nil
}

func translateGather(gb *gatherBlock, placeholders []string, constraints map[string]string) (*Gather, error) {
	item, err := wildcard.Parse(gb.Item, constraints)
	if err != nil {
		return nil, err
	}
	if len(item.Names()) != 1 {
		return nil, fmt.Errorf("item pattern %q must have exactly one placeholder", gb.Item)
	}
	identity := item.Names()[0]
	if slices.Contains(placeholders, identity) {
		return nil, fmt.Errorf("item placeholder {%s} collides with a rule wildcard", identity)
	}

	input, err := wildcard.Parse(gb.Input, constraints)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(input.Names(), identity) {
		return nil, fmt.Errorf("input pattern %q must use the item placeholder {%s}", gb.Input, identity)
	}

	as := gb.As
	if as == "" {
		as = "items"
	}
	return &Gather{Checkpoint: gb.Checkpoint, Item: item, Input: input, As: as}, nil
}

// isExprDefined checks if an HCL expression was actually present in the
// source. Omitted optional attributes decode to a zero-width static null.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	if rng.End.Byte <= rng.Start.Byte {
		return false
	}
	if len(expr.Variables()) == 0 {
		if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
			return false
		}
	}
	return true
}
