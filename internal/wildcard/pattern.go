package wildcard

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultConstraint is applied to placeholders without an explicit constraint.
const DefaultConstraint = `[^/]+`

var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type segment struct {
	literal     string
	placeholder string
}

// Pattern is a compiled placeholder pattern. It is immutable and safe for
// concurrent use.
type Pattern struct {
	raw         string
	segments    []segment
	names       []string
	re          *regexp.Regexp
	constraints map[string]*regexp.Regexp
}

// Parse compiles raw into a Pattern. constraints maps placeholder names to
// regexes; names absent from it use DefaultConstraint. A `{{` or `}}` in raw
// stands for a literal brace.
func Parse(raw string, constraints map[string]string) (*Pattern, error) {
	segs, err := split(raw)
	if err != nil {
		return nil, err
	}

	p := &Pattern{
		raw:         raw,
		segments:    segs,
		constraints: make(map[string]*regexp.Regexp),
	}

	var expr strings.Builder
	expr.WriteByte('^')
	group := 0
	for _, s := range segs {
		if s.placeholder == "" {
			expr.WriteString(regexp.QuoteMeta(s.literal))
			continue
		}
		c, ok := constraints[s.placeholder]
		if !ok || c == "" {
			c = DefaultConstraint
		}
		if _, seen := p.constraints[s.placeholder]; !seen {
			anchored, err := regexp.Compile(`^(?:` + c + `)$`)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: invalid constraint for {%s}: %w", raw, s.placeholder, err)
			}
			p.constraints[s.placeholder] = anchored
			p.names = append(p.names, s.placeholder)
		}
		fmt.Fprintf(&expr, "(?P<p%d>(?:%s))", group, c)
		group++
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", raw, err)
	}
	p.re = re
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level patterns.
func MustParse(raw string, constraints map[string]string) *Pattern {
	p, err := Parse(raw, constraints)
	if err != nil {
		panic(err)
	}
	return p
}

func split(raw string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("pattern %q: unterminated placeholder at offset %d", raw, i)
			}
			name := raw[i+1 : i+1+end]
			if !nameRegex.MatchString(name) {
				return nil, fmt.Errorf("pattern %q: invalid placeholder name %q", raw, name)
			}
			flush()
			segs = append(segs, segment{placeholder: name})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("pattern %q: unbalanced '}' at offset %d", raw, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// String returns the raw pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Names returns the distinct placeholder names in order of first appearance.
func (p *Pattern) Names() []string {
	return append([]string(nil), p.names...)
}

// IsLiteral reports whether the pattern has no placeholders.
func (p *Pattern) IsLiteral() bool {
	return len(p.names) == 0
}

// Match binds the pattern against a concrete path.
func (p *Pattern) Match(path string) (Binding, error) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, &PatternMismatchError{Pattern: p.raw, Path: path}
	}

	b := make(Binding, len(p.names))
	group := 0
	for _, s := range p.segments {
		if s.placeholder == "" {
			continue
		}
		v := m[p.re.SubexpIndex(fmt.Sprintf("p%d", group))]
		group++
		if prev, ok := b[s.placeholder]; ok && prev != v {
			return nil, &PatternMismatchError{
				Pattern: p.raw,
				Path:    path,
				Reason:  fmt.Sprintf("placeholder {%s} bound to both %q and %q", s.placeholder, prev, v),
			}
		}
		b[s.placeholder] = v
	}
	return b, nil
}

// Validate checks every value in b that this pattern constrains.
func (p *Pattern) Validate(b Binding) error {
	for _, name := range p.names {
		v, ok := b[name]
		if !ok {
			continue
		}
		if !p.constraints[name].MatchString(v) {
			return &PatternMismatchError{
				Pattern: p.raw,
				Path:    v,
				Reason:  fmt.Sprintf("value for {%s} violates constraint %s", name, p.constraints[name]),
			}
		}
	}
	return nil
}

// Expand substitutes every placeholder with its value from b, falling back
// to lookup for names b does not carry.
func (p *Pattern) Expand(b Binding, lookup Lookup) (string, error) {
	var sb strings.Builder
	for _, s := range p.segments {
		if s.placeholder == "" {
			sb.WriteString(s.literal)
			continue
		}
		if v, ok := b[s.placeholder]; ok {
			sb.WriteString(v)
			continue
		}
		if lookup != nil {
			if v, ok := lookup(s.placeholder); ok {
				sb.WriteString(v)
				continue
			}
		}
		return "", &UnboundPlaceholderError{Pattern: p.raw, Placeholder: s.placeholder}
	}
	return sb.String(), nil
}

// Expand parses raw with default constraints and expands it in one step.
func Expand(raw string, b Binding, lookup Lookup) (string, error) {
	p, err := Parse(raw, nil)
	if err != nil {
		return "", err
	}
	return p.Expand(b, lookup)
}

// HasPlaceholders reports whether s contains at least one `{name}`.
func HasPlaceholders(s string) bool {
	segs, err := split(s)
	if err != nil {
		return false
	}
	for _, seg := range segs {
		if seg.placeholder != "" {
			return true
		}
	}
	return false
}
