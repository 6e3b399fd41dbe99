package pipeline

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/phylogrid/internal/buildconfig"
	"github.com/vk/phylogrid/internal/checkpoint"
	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/resolver"
	"github.com/vk/phylogrid/internal/template"
)

//go:embed workflow.hcl
var workflowSource []byte

// WorkflowName names the embedded workflow in diagnostics.
const WorkflowName = "ncov.hcl"

// DefaultTargets are requested when neither the caller nor the workflow
// names any.
var DefaultTargets = []string{"auspice/ncov_{region}.json"}

// Source returns the embedded workflow.
func Source() []byte {
	return slices.Clone(workflowSource)
}

// Embedded parses the embedded workflow.
func Embedded() (*template.Workflow, error) {
	return template.Parse(workflowSource, WorkflowName)
}

// Options selects the sources of a Project.
type Options struct {
	// WorkflowPaths are .hcl files or directories. Empty means the embedded
	// workflow.
	WorkflowPaths []string
	ConfigPath    string
}

// Project is a workflow bound to a validated build configuration.
type Project struct {
	Config   *buildconfig.Config
	Workflow *template.Workflow
	Registry *template.Registry
}

// Load reads the configuration and workflow named by opts.
func Load(ctx context.Context, opts Options) (*Project, error) {
	logger := ctxlog.FromContext(ctx)

	cfg, err := buildconfig.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build config loaded.", "path", opts.ConfigPath, "regions", cfg.Regions())

	var w *template.Workflow
	if len(opts.WorkflowPaths) == 0 {
		logger.Debug("Using embedded workflow.", "name", WorkflowName)
		w, err = Embedded()
	} else {
		w, err = template.LoadFiles(ctx, opts.WorkflowPaths...)
	}
	if err != nil {
		return nil, err
	}
	return New(cfg, w)
}

// New registers every template of w in an environment built from cfg.
func New(cfg *buildconfig.Config, w *template.Workflow) (*Project, error) {
	reg := template.NewRegistry(template.Env{
		Variables: map[string]cty.Value{"config": cfg.Value()},
		Functions: cfg.Functions(),
		Lookup:    cfg.Lookup,
	})
	if err := reg.RegisterWorkflow(w); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	if err := requireFiles(cfg, reg); err != nil {
		return nil, err
	}
	return &Project{Config: cfg, Workflow: w, Registry: reg}, nil
}

// requireFiles checks that every file the rules take from the files mapping
// is configured, reporting each missing one as a ValidationError.
func requireFiles(cfg *buildconfig.Config, reg *template.Registry) error {
	var errs []error
	seen := make(map[string]bool)
	for _, t := range reg.Templates() {
		for _, key := range t.FileKeys() {
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := cfg.Lookup(key); !ok {
				errs = append(errs, &buildconfig.ValidationError{
					Key:    "files." + key,
					Reason: fmt.Sprintf("missing required key, used by rule %q", t.Name),
				})
			}
		}
	}
	return errors.Join(errs...)
}

// Targets expands requested target patterns over the configured regions.
// With nothing requested it falls back to the workflow's targets, then to
// DefaultTargets.
func (p *Project) Targets(requested []string) ([]string, error) {
	patterns := requested
	if len(patterns) == 0 {
		patterns = p.Workflow.Targets
	}
	if len(patterns) == 0 {
		patterns = DefaultTargets
	}
	return p.Config.ExpandTargets(patterns)
}

// Resolver returns a resolver for a working directory.
func (p *Project) Resolver(dir string) *resolver.Resolver {
	return resolver.New(p.Registry, resolver.Options{Dir: dir, Literal: p.Config.IsLiteral})
}

// Expander returns a checkpoint expander for a working directory.
func (p *Project) Expander(dir string) *checkpoint.Expander {
	return checkpoint.New(p.Registry, p.Resolver(dir), dir)
}
