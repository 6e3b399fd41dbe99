package buildconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const swissYAML = `
files:
  reference: defaults/reference_seq.gb
  include: defaults/include.txt
  exclude: defaults/exclude.txt
builds:
  swiss:
    title: Swiss build
    subsamples:
      switzerland:
        group_by: division year month
        max_sequences: 260
        exclude: "--exclude-where country!=Switzerland"
      europe:
        group_by: country year month
        max_sequences: 30
        exclude: "--exclude-where region!=Europe"
      global:
        group_by: country year month
        max_sequences: 2
        priorities:
          type: proximity
          focus: switzerland
`

func mustParse(t *testing.T, src string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(src))
	require.NoError(t, err)
	return cfg
}

func TestParse_Valid(t *testing.T) {
	cfg := mustParse(t, swissYAML)

	assert.Equal(t, []string{"swiss"}, cfg.Regions())
	names, err := cfg.SubsampleNames("swiss")
	require.NoError(t, err)
	assert.Equal(t, []string{"europe", "global", "switzerland"}, names)

	want := &Subsample{
		GroupBy:      "country year month",
		MaxSequences: 2,
		Priorities:   &Priority{Type: PriorityProximity, Focus: "switzerland"},
	}
	got, err := cfg.Subsample("swiss", "global")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subsample mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		keys []string
	}{
		{
			name: "empty document",
			src:  "",
			keys: []string{"(root)"},
		},
		{
			name: "not a mapping",
			src:  "- a\n- b\n",
			keys: []string{"(root)"},
		},
		{
			name: "missing top level keys",
			src:  "other: 1\n",
			keys: []string{"files", "builds"},
		},
		{
			name: "missing reference",
			src: `
files: {colors: c.tsv}
builds: {global: {}}
`,
			keys: []string{"files.reference"},
		},
		{
			name: "region without subsamples",
			src: `
files: {reference: r.gb}
builds:
  swiss: {title: x}
`,
			keys: []string{"builds.swiss.subsamples"},
		},
		{
			name: "subsample missing required keys",
			src: `
files: {reference: r.gb}
builds:
  swiss:
    subsamples:
      europe: {exclude: "x"}
`,
			keys: []string{"builds.swiss.subsamples.europe.group_by", "builds.swiss.subsamples.europe.max_sequences"},
		},
		{
			name: "non-positive max_sequences",
			src: `
files: {reference: r.gb}
builds:
  swiss:
    subsamples:
      europe: {group_by: country, max_sequences: 0}
`,
			keys: []string{"builds.swiss.subsamples.europe.max_sequences"},
		},
		{
			name: "priority focus not in region",
			src: `
files: {reference: r.gb}
builds:
  swiss:
    subsamples:
      global:
        group_by: country
        max_sequences: 2
        priorities: {type: proximity, focus: switzerland}
`,
			keys: []string{"builds.swiss.subsamples.global.priorities.focus"},
		},
		{
			name: "priority focus on itself",
			src: `
files: {reference: r.gb}
builds:
  swiss:
    subsamples:
      global:
        group_by: country
        max_sequences: 2
        priorities: {type: proximity, focus: global}
`,
			keys: []string{"builds.swiss.subsamples.global.priorities.focus"},
		},
		{
			name: "unsupported priority type",
			src: `
files: {reference: r.gb}
builds:
  swiss:
    subsamples:
      a: {group_by: country, max_sequences: 2}
      b:
        group_by: country
        max_sequences: 2
        priorities: {type: random, focus: a}
`,
			keys: []string{"builds.swiss.subsamples.b.priorities.type"},
		},
		{
			name: "bad region name",
			src: `
files: {reference: r.gb}
builds:
  "swiss/north": {subsamples: {a: {group_by: x, max_sequences: 1}}}
`,
			keys: []string{"builds.swiss/north"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			require.Error(t, err)

			var got []string
			var joined interface{ Unwrap() []error }
			if errors.As(err, &joined) {
				for _, e := range joined.Unwrap() {
					var ve *ValidationError
					require.ErrorAs(t, e, &ve)
					got = append(got, ve.Key)
				}
			}
			assert.ElementsMatch(t, tc.keys, got)
		})
	}
}

func TestParse_GlobalRegionNeedsNoSubsamples(t *testing.T) {
	cfg := mustParse(t, `
files: {reference: r.gb}
builds:
  global:
`)
	assert.Equal(t, []string{"global"}, cfg.Regions())
	names, err := cfg.SubsampleNames("global")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(swissYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Swiss build", cfg.Builds["swiss"].Title)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_Param(t *testing.T) {
	cfg := mustParse(t, swissYAML)

	testCases := []struct {
		subsample, key, want string
	}{
		{"switzerland", "group_by", "division year month"},
		{"switzerland", "max_sequences", "260"},
		{"europe", "exclude", "--exclude-where region!=Europe"},
		{"europe", "include", ""},
		{"europe", "priorities", ""},
		{"global", "priorities", "proximity"},
	}
	for _, tc := range testCases {
		t.Run(tc.subsample+"/"+tc.key, func(t *testing.T) {
			got, err := cfg.Param("swiss", tc.subsample, tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := cfg.Param("swiss", "europe", "colour")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = cfg.Param("swiss", "asia", "group_by")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "builds.swiss.subsamples.asia", ve.Key)

	_, err = cfg.Param("mars", "asia", "group_by")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "builds.mars", ve.Key)
}

func TestConfig_PriorityFocus(t *testing.T) {
	cfg := mustParse(t, swissYAML)

	focus, ok, err := cfg.PriorityFocus("swiss", "global")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "switzerland", focus)

	_, ok, err = cfg.PriorityFocus("swiss", "europe")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfig_RegionKind(t *testing.T) {
	cfg := mustParse(t, swissYAML)
	assert.Equal(t, KindGlobal, cfg.RegionKind("global"))
	assert.Equal(t, KindSubsampled, cfg.RegionKind("swiss"))
	assert.Equal(t, KindSubsampled, cfg.RegionKind("Global"), "only the exact name is special")
}

func TestConfig_ExpandTargets(t *testing.T) {
	cfg := mustParse(t, `
files: {reference: r.gb}
builds:
  swiss: {subsamples: {a: {group_by: x, max_sequences: 1}}}
  global:
`)

	got, err := cfg.ExpandTargets([]string{"auspice/ncov_{region}.json", "results/masked.fasta", "auspice/ncov_{region}.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"auspice/ncov_global.json", "auspice/ncov_swiss.json", "results/masked.fasta"}, got)

	_, err = cfg.ExpandTargets([]string{"results/{region}/sample-{subsample}.fasta"})
	require.ErrorContains(t, err, "{subsample}")
}

func TestConfig_LookupAndLiteral(t *testing.T) {
	cfg := mustParse(t, swissYAML)

	v, ok := cfg.Lookup("reference")
	assert.True(t, ok)
	assert.Equal(t, "defaults/reference_seq.gb", v)
	_, ok = cfg.Lookup("colors")
	assert.False(t, ok)

	assert.True(t, cfg.IsLiteral("defaults/include.txt"))
	assert.False(t, cfg.IsLiteral("results/masked.fasta"))
}

func TestConfig_Value(t *testing.T) {
	cfg := mustParse(t, swissYAML)
	v := cfg.Value()

	assert.Equal(t, cty.StringVal("defaults/reference_seq.gb"), v.GetAttr("files").Index(cty.StringVal("reference")))
	assert.Equal(t, cty.ListVal([]cty.Value{cty.StringVal("swiss")}), v.GetAttr("regions"))
}

func TestConfig_Functions(t *testing.T) {
	cfg := mustParse(t, swissYAML)
	fns := cfg.Functions()

	call := func(name string, args ...string) (cty.Value, error) {
		vals := make([]cty.Value, len(args))
		for i, a := range args {
			vals[i] = cty.StringVal(a)
		}
		return fns[name].Call(vals)
	}

	t.Run("subsamples", func(t *testing.T) {
		v, err := call("subsamples", "swiss")
		require.NoError(t, err)
		assert.Equal(t, 3, v.LengthInt())

		_, err = call("subsamples", "mars")
		require.Error(t, err)
	})

	t.Run("subsample_param", func(t *testing.T) {
		v, err := call("subsample_param", "swiss", "europe", "max_sequences")
		require.NoError(t, err)
		assert.Equal(t, "30", v.AsString())
	})

	t.Run("priority_inputs with proximity", func(t *testing.T) {
		v, err := call("priority_inputs", "swiss", "global", "results/{region}/proximity_{focus}.tsv")
		require.NoError(t, err)
		assert.Equal(t, cty.ListVal([]cty.Value{cty.StringVal("results/{region}/proximity_switzerland.tsv")}), v)
	})

	t.Run("priority_inputs without priority", func(t *testing.T) {
		v, err := call("priority_inputs", "swiss", "europe", "results/{region}/proximity_{focus}.tsv")
		require.NoError(t, err)
		assert.Equal(t, 0, v.LengthInt())
	})

	t.Run("region_kind", func(t *testing.T) {
		v, err := call("region_kind", "global")
		require.NoError(t, err)
		assert.Equal(t, "global", v.AsString())
	})

	t.Run("subsample_outputs", func(t *testing.T) {
		v, err := call("subsample_outputs", "swiss", "results/{region}/sample-{subsample}.fasta")
		require.NoError(t, err)
		assert.Equal(t, cty.ListVal([]cty.Value{
			cty.StringVal("results/{region}/sample-europe.fasta"),
			cty.StringVal("results/{region}/sample-global.fasta"),
			cty.StringVal("results/{region}/sample-switzerland.fasta"),
		}), v)
	})
}
