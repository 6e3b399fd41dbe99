package buildconfig

import (
	"fmt"

	"github.com/vk/phylogrid/internal/wildcard"
)

// RegionPlaceholder is the one free placeholder a requested target may carry.
const RegionPlaceholder = "region"

// ExpandTargets expands each target pattern over the configured regions. A
// pattern without placeholders is kept as-is; a pattern with any free
// placeholder other than {region} is rejected. Duplicates are dropped and
// order is preserved.
func (c *Config) ExpandTargets(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, raw := range patterns {
		p, err := wildcard.Parse(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid target: %w", err)
		}
		for _, name := range p.Names() {
			if name != RegionPlaceholder {
				return nil, fmt.Errorf("target %q has free placeholder {%s}; only {%s} is allowed", raw, name, RegionPlaceholder)
			}
		}
		if p.IsLiteral() {
			add(raw)
			continue
		}
		for _, region := range c.Regions() {
			path, err := p.Expand(wildcard.Binding{RegionPlaceholder: region}, nil)
			if err != nil {
				return nil, err
			}
			add(path)
		}
	}
	return out, nil
}
