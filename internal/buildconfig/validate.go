package buildconfig

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// nameRegex restricts region and subsample names to characters that are safe
// inside output paths and wildcard constraints.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError is a single problem in the configuration tree. Key is the
// dotted path of the offending key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config key %q: %s", e.Key, e.Reason)
}

func missing(key string) error {
	return &ValidationError{Key: key, Reason: "missing required key"}
}

// lookup returns the value node of key in a mapping node.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func validate(root *yaml.Node) []error {
	if root == nil || isNull(root) {
		return []error{&ValidationError{Key: "(root)", Reason: "configuration is empty"}}
	}
	if root.Kind != yaml.MappingNode {
		return []error{&ValidationError{Key: "(root)", Reason: "must be a mapping"}}
	}

	var errs []error
	errs = append(errs, validateFiles(lookup(root, "files"))...)
	errs = append(errs, validateBuilds(lookup(root, "builds"))...)
	return errs
}

func validateFiles(files *yaml.Node) []error {
	if isNull(files) {
		return []error{missing("files")}
	}
	if files.Kind != yaml.MappingNode {
		return []error{&ValidationError{Key: "files", Reason: "must be a mapping of names to paths"}}
	}

	var errs []error
	for i := 0; i+1 < len(files.Content); i += 2 {
		k, v := files.Content[i], files.Content[i+1]
		if v.Kind != yaml.ScalarNode || isNull(v) {
			errs = append(errs, &ValidationError{Key: "files." + k.Value, Reason: "must be a path string"})
		}
	}
	if ref := lookup(files, "reference"); isNull(ref) || ref.Value == "" {
		errs = append(errs, missing("files.reference"))
	}
	return errs
}

func validateBuilds(builds *yaml.Node) []error {
	if isNull(builds) {
		return []error{missing("builds")}
	}
	if builds.Kind != yaml.MappingNode {
		return []error{&ValidationError{Key: "builds", Reason: "must be a mapping of regions"}}
	}
	if len(builds.Content) == 0 {
		return []error{&ValidationError{Key: "builds", Reason: "at least one region is required"}}
	}

	var errs []error
	for i := 0; i+1 < len(builds.Content); i += 2 {
		region, body := builds.Content[i].Value, builds.Content[i+1]
		key := "builds." + region
		if !nameRegex.MatchString(region) {
			errs = append(errs, &ValidationError{Key: key, Reason: "region name must match " + nameRegex.String()})
			continue
		}
		if isNull(body) {
			if region != GlobalRegion {
				errs = append(errs, missing(key+".subsamples"))
			}
			continue
		}
		if body.Kind != yaml.MappingNode {
			errs = append(errs, &ValidationError{Key: key, Reason: "must be a mapping"})
			continue
		}
		errs = append(errs, validateSubsamples(region, lookup(body, "subsamples"))...)
	}
	return errs
}

func validateSubsamples(region string, subs *yaml.Node) []error {
	key := fmt.Sprintf("builds.%s.subsamples", region)
	if isNull(subs) {
		if region == GlobalRegion {
			return nil
		}
		return []error{missing(key)}
	}
	if subs.Kind != yaml.MappingNode {
		return []error{&ValidationError{Key: key, Reason: "must be a mapping of subsample names"}}
	}
	if len(subs.Content) == 0 && region != GlobalRegion {
		return []error{&ValidationError{Key: key, Reason: "at least one subsample is required"}}
	}

	names := make(map[string]bool)
	for i := 0; i+1 < len(subs.Content); i += 2 {
		names[subs.Content[i].Value] = true
	}

	var errs []error
	for i := 0; i+1 < len(subs.Content); i += 2 {
		name, body := subs.Content[i].Value, subs.Content[i+1]
		skey := key + "." + name
		if !nameRegex.MatchString(name) {
			errs = append(errs, &ValidationError{Key: skey, Reason: "subsample name must match " + nameRegex.String()})
			continue
		}
		if isNull(body) || body.Kind != yaml.MappingNode {
			errs = append(errs, &ValidationError{Key: skey, Reason: "must be a mapping"})
			continue
		}

		if g := lookup(body, "group_by"); isNull(g) || g.Value == "" {
			errs = append(errs, missing(skey+".group_by"))
		}
		if m := lookup(body, "max_sequences"); isNull(m) {
			errs = append(errs, missing(skey+".max_sequences"))
		} else if n, err := strconv.Atoi(m.Value); err != nil || n <= 0 {
			errs = append(errs, &ValidationError{Key: skey + ".max_sequences", Reason: "must be a positive integer"})
		}
		for _, opt := range []string{"exclude", "include"} {
			if v := lookup(body, opt); !isNull(v) && v.Kind != yaml.ScalarNode {
				errs = append(errs, &ValidationError{Key: skey + "." + opt, Reason: "must be a string"})
			}
		}
		errs = append(errs, validatePriority(skey+".priorities", name, lookup(body, "priorities"), names)...)
	}
	return errs
}

func validatePriority(key, self string, p *yaml.Node, siblings map[string]bool) []error {
	if isNull(p) {
		return nil
	}
	if p.Kind != yaml.MappingNode {
		return []error{&ValidationError{Key: key, Reason: "must be a mapping"}}
	}

	var errs []error
	switch typ := lookup(p, "type"); {
	case isNull(typ):
		errs = append(errs, missing(key+".type"))
	case typ.Value != PriorityProximity:
		errs = append(errs, &ValidationError{Key: key + ".type", Reason: fmt.Sprintf("unsupported priority type %q", typ.Value)})
	}

	switch focus := lookup(p, "focus"); {
	case isNull(focus) || focus.Value == "":
		errs = append(errs, missing(key+".focus"))
	case focus.Value == self:
		errs = append(errs, &ValidationError{Key: key + ".focus", Reason: "a subsample cannot prioritize itself"})
	case !siblings[focus.Value]:
		errs = append(errs, &ValidationError{Key: key + ".focus", Reason: fmt.Sprintf("focus %q is not a subsample of the same region", focus.Value)})
	}
	return errs
}
