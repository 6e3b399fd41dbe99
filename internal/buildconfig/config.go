package buildconfig

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// GlobalRegion is the region name that skips subsampling.
const GlobalRegion = "global"

// PriorityProximity is the only supported priority type.
const PriorityProximity = "proximity"

// RegionKind is the structural branch a region's jobs take.
type RegionKind string

const (
	// KindGlobal regions build their tree from the full masked alignment.
	KindGlobal RegionKind = "global"
	// KindSubsampled regions build their tree from combined subsamples.
	KindSubsampled RegionKind = "subsampled"
)

// Config is the validated build configuration.
type Config struct {
	Files  map[string]string `yaml:"files"`
	Builds map[string]*Build `yaml:"builds"`
}

// Build is one region build.
type Build struct {
	Title      string                `yaml:"title"`
	Subsamples map[string]*Subsample `yaml:"subsamples"`
}

// Subsample is one named subsampling scheme of a region. It is either plain
// (Priorities == nil) or prioritized by proximity to a focus subsample.
type Subsample struct {
	GroupBy      string    `yaml:"group_by"`
	MaxSequences int       `yaml:"max_sequences"`
	Exclude      string    `yaml:"exclude"`
	Include      string    `yaml:"include"`
	Priorities   *Priority `yaml:"priorities"`
}

// Priority directs a subsample to prefer sequences close to a focus set.
type Priority struct {
	Type  string `yaml:"type"`
	Focus string `yaml:"focus"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes YAML configuration bytes. All validation
// problems are reported together.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if errs := validate(root); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	for region, b := range cfg.Builds {
		if b == nil {
			cfg.Builds[region] = &Build{}
		}
	}
	return &cfg, nil
}

// Regions returns the configured region names, sorted.
func (c *Config) Regions() []string {
	return slices.Sorted(maps.Keys(c.Builds))
}

// RegionKind classifies a region. Only GlobalRegion is KindGlobal; this is
// deliberately not derived from the region's contents.
func (c *Config) RegionKind(region string) RegionKind {
	switch region {
	case GlobalRegion:
		return KindGlobal
	default:
		return KindSubsampled
	}
}

func (c *Config) build(region string) (*Build, error) {
	b, ok := c.Builds[region]
	if !ok {
		return nil, &ValidationError{Key: "builds." + region, Reason: "region is not configured"}
	}
	return b, nil
}

// SubsampleNames returns the subsample names of a region, sorted.
func (c *Config) SubsampleNames(region string) ([]string, error) {
	b, err := c.build(region)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(b.Subsamples)), nil
}

// Subsample returns one subsample of a region.
func (c *Config) Subsample(region, name string) (*Subsample, error) {
	b, err := c.build(region)
	if err != nil {
		return nil, err
	}
	s, ok := b.Subsamples[name]
	if !ok {
		return nil, &ValidationError{
			Key:    fmt.Sprintf("builds.%s.subsamples.%s", region, name),
			Reason: "subsample is not configured",
		}
	}
	return s, nil
}

// Param returns config[region][subsample][key] rendered as a string.
// The optional keys exclude, include and priorities default to "".
func (c *Config) Param(region, subsample, key string) (string, error) {
	s, err := c.Subsample(region, subsample)
	if err != nil {
		return "", err
	}
	switch key {
	case "group_by":
		return s.GroupBy, nil
	case "max_sequences":
		return strconv.Itoa(s.MaxSequences), nil
	case "exclude":
		return s.Exclude, nil
	case "include":
		return s.Include, nil
	case "priorities":
		if s.Priorities == nil {
			return "", nil
		}
		return s.Priorities.Type, nil
	default:
		return "", &ValidationError{
			Key:    fmt.Sprintf("builds.%s.subsamples.%s.%s", region, subsample, key),
			Reason: "unknown subsample parameter",
		}
	}
}

// PriorityFocus returns the focus subsample of a proximity-prioritized
// subsample. ok is false for plain subsamples.
func (c *Config) PriorityFocus(region, subsample string) (focus string, ok bool, err error) {
	s, err := c.Subsample(region, subsample)
	if err != nil {
		return "", false, err
	}
	if s.Priorities == nil || s.Priorities.Type != PriorityProximity {
		return "", false, nil
	}
	return s.Priorities.Focus, true, nil
}

// Lookup resolves a literal file by its key in the files mapping.
func (c *Config) Lookup(name string) (string, bool) {
	v, ok := c.Files[name]
	return v, ok
}

// IsLiteral reports whether path is one of the configured literal files.
func (c *Config) IsLiteral(path string) bool {
	for _, v := range c.Files {
		if v == path {
			return true
		}
	}
	return false
}
