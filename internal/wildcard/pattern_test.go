package wildcard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		names     []string
	}{
		{name: "literal", raw: "results/masked.fasta", names: nil},
		{name: "one placeholder", raw: "auspice/ncov_{region}.json", names: []string{"region"}},
		{name: "two placeholders", raw: "results/{region}/sample-{subsample}.fasta", names: []string{"region", "subsample"}},
		{name: "repeated placeholder", raw: "{a}/{a}.txt", names: []string{"a"}},
		{name: "escaped braces", raw: "x{{y}}/{a}", names: []string{"a"}},
		{name: "error - unterminated", raw: "results/{region", expectErr: true},
		{name: "error - stray close", raw: "results/region}", expectErr: true},
		{name: "error - empty name", raw: "results/{}", expectErr: true},
		{name: "error - bad name", raw: "results/{re-gion}", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw, nil)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.raw, p.String())
			if tc.names == nil {
				assert.Empty(t, p.Names())
				assert.True(t, p.IsLiteral())
			} else {
				assert.Equal(t, tc.names, p.Names())
			}
		})
	}

	t.Run("invalid constraint", func(t *testing.T) {
		_, err := Parse("{a}", map[string]string{"a": "[unclosed"})
		require.Error(t, err)
	})
}

func TestPattern_Match(t *testing.T) {
	testCases := []struct {
		name        string
		raw         string
		constraints map[string]string
		path        string
		expected    Binding
		mismatch    bool
	}{
		{
			name:     "binds two placeholders",
			raw:      "results/{region}/sample-{subsample}.fasta",
			path:     "results/swiss/sample-europe.fasta",
			expected: Binding{"region": "swiss", "subsample": "europe"},
		},
		{
			name:     "literal match",
			raw:      "results/masked.fasta",
			path:     "results/masked.fasta",
			expected: Binding{},
		},
		{
			name:     "default constraint stops at slash",
			raw:      "results/{region}/tree.nwk",
			path:     "results/a/b/tree.nwk",
			mismatch: true,
		},
		{
			name:     "placeholder needs at least one char",
			raw:      "auspice/ncov_{region}.json",
			path:     "auspice/ncov_.json",
			mismatch: true,
		},
		{
			name:     "regex metacharacters in literal text",
			raw:      "data/{name}.tar.gz",
			path:     "data/xtarygz.tar.gz",
			expected: Binding{"name": "xtarygz"},
		},
		{
			name:     "metacharacters are not wildcards",
			raw:      "data/{name}.tar.gz",
			path:     "data/abc_tarxgz",
			mismatch: true,
		},
		{
			name:        "custom constraint",
			raw:         "results/split_alignments/{i}.fasta",
			constraints: map[string]string{"i": "[0-9]+"},
			path:        "results/split_alignments/12.fasta",
			expected:    Binding{"i": "12"},
		},
		{
			name:        "custom constraint rejects",
			raw:         "results/split_alignments/{i}.fasta",
			constraints: map[string]string{"i": "[0-9]+"},
			path:        "results/split_alignments/x.fasta",
			mismatch:    true,
		},
		{
			name:     "repeated placeholder must agree",
			raw:      "{a}/{a}.txt",
			path:     "x/y.txt",
			mismatch: true,
		},
		{
			name:     "repeated placeholder agrees",
			raw:      "{a}/{a}.txt",
			path:     "x/x.txt",
			expected: Binding{"a": "x"},
		},
		{
			name:     "escaped brace is literal",
			raw:      "x{{y}}/{a}",
			path:     "x{y}/v",
			expected: Binding{"a": "v"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := MustParse(tc.raw, tc.constraints)
			b, err := p.Match(tc.path)
			if tc.mismatch {
				var pm *PatternMismatchError
				require.ErrorAs(t, err, &pm)
				assert.Equal(t, tc.raw, pm.Pattern)
				assert.Equal(t, tc.path, pm.Path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, b)
		})
	}
}

func TestPattern_Expand(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "reference" {
			return "defaults/reference_seq.gb", true
		}
		return "", false
	}

	t.Run("expands from binding", func(t *testing.T) {
		got, err := Expand("results/{region}/sample-{subsample}.fasta", Binding{"region": "swiss", "subsample": "global"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "results/swiss/sample-global.fasta", got)
	})

	t.Run("falls back to lookup", func(t *testing.T) {
		got, err := Expand("{reference}", Binding{"region": "swiss"}, lookup)
		require.NoError(t, err)
		assert.Equal(t, "defaults/reference_seq.gb", got)
	})

	t.Run("binding wins over lookup", func(t *testing.T) {
		got, err := Expand("{reference}", Binding{"reference": "mine.gb"}, lookup)
		require.NoError(t, err)
		assert.Equal(t, "mine.gb", got)
	})

	t.Run("unbound placeholder", func(t *testing.T) {
		_, err := Expand("results/{region}/{missing}.txt", Binding{"region": "swiss"}, lookup)
		var ub *UnboundPlaceholderError
		require.True(t, errors.As(err, &ub))
		assert.Equal(t, "missing", ub.Placeholder)
	})

	t.Run("match then expand round trips", func(t *testing.T) {
		p := MustParse("results/{region}/proximity_{focus}.tsv", nil)
		path := "results/swiss/proximity_switzerland.tsv"
		b, err := p.Match(path)
		require.NoError(t, err)
		got, err := p.Expand(b, nil)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})
}

func TestPattern_Validate(t *testing.T) {
	p := MustParse("auspice/ncov_{region}.json", map[string]string{"region": "[a-z]+"})

	require.NoError(t, p.Validate(Binding{"region": "swiss"}))
	require.NoError(t, p.Validate(Binding{"other": "X/Y"}), "unconstrained names are ignored")

	err := p.Validate(Binding{"region": "Swiss"})
	var pm *PatternMismatchError
	require.ErrorAs(t, err, &pm)
	assert.Contains(t, pm.Reason, "{region}")
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("results/{region}/x"))
	assert.False(t, HasPlaceholders("results/masked.fasta"))
	assert.False(t, HasPlaceholders("a{{b}}"))
}

func TestBinding(t *testing.T) {
	b := Binding{"subsample": "europe", "region": "swiss"}
	assert.Equal(t, []string{"region", "subsample"}, b.Keys())
	assert.Equal(t, "region=swiss,subsample=europe", b.String())

	ext := b.With("i", "3")
	assert.Equal(t, "3", ext["i"])
	assert.NotContains(t, b, "i", "With must not mutate the receiver")

	var nilBinding Binding
	assert.Equal(t, Binding{}, nilBinding.Clone())
}
