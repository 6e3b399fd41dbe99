// internal/jobid/parser.go
package jobid

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// templateRegex limits template names to what the workflow language accepts
// as block labels.
var templateRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Parse creates a new ID by parsing its canonical string representation.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return ID{}, fmt.Errorf("identifier cannot be empty")
	}

	open := strings.IndexByte(raw, '[')
	if open < 0 {
		if !templateRegex.MatchString(raw) {
			return ID{}, fmt.Errorf("invalid template name: %q", raw)
		}
		return ID{Template: raw}, nil
	}

	template := raw[:open]
	if !templateRegex.MatchString(template) {
		return ID{}, fmt.Errorf("invalid template name: %q", template)
	}
	if !strings.HasSuffix(raw, "]") {
		return ID{}, fmt.Errorf("identifier %q is missing closing ']'", raw)
	}

	params, err := parseParams(raw[open+1 : len(raw)-1])
	if err != nil {
		return ID{}, fmt.Errorf("identifier %q: %w", raw, err)
	}
	if len(params) == 0 {
		return ID{}, fmt.Errorf("identifier %q has empty parameter list", raw)
	}

	sorted := slices.IsSortedFunc(params, func(a, b Param) int {
		return strings.Compare(a.Name, b.Name)
	})
	if !sorted {
		return ID{}, fmt.Errorf("identifier %q: parameters are not in canonical order", raw)
	}
	return ID{Template: template, Params: params}, nil
}

func parseParams(body string) ([]Param, error) {
	var (
		params  []Param
		cur     strings.Builder
		name    string
		hasName bool
		escaped bool
	)

	finish := func() error {
		if !hasName {
			return fmt.Errorf("parameter %q is missing '='", cur.String())
		}
		if name == "" {
			return fmt.Errorf("parameter with empty name")
		}
		for _, p := range params {
			if p.Name == name {
				return fmt.Errorf("duplicate parameter %q", name)
			}
		}
		params = append(params, Param{Name: name, Value: cur.String()})
		cur.Reset()
		name, hasName = "", false
		return nil
	}

	for _, r := range body {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '=' && !hasName:
			name, hasName = cur.String(), true
			cur.Reset()
		case r == '=' || r == ']':
			return nil, fmt.Errorf("unescaped %q", r)
		case r == ',':
			if err := finish(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("dangling escape")
	}
	if body == "" {
		return nil, nil
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return params, nil
}
