package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/phylogrid/internal/executor"
	"github.com/vk/phylogrid/internal/job"
	phyloutil "github.com/vk/phylogrid/internal/testutil"
)

const testBuildConfig = `
files:
  reference: defaults/reference.gb
builds:
  global:
  swiss:
    subsamples:
      all: {group_by: country, max_sequences: 10}
`

const testWorkflow = `
rule "seed" {
  output  = "data/sequences.txt"
  command = ["sh", "-c", "printf 'a\\nb\\nc\\n' > ${output}"]
}

rule "split" {
  input      = "data/sequences.txt"
  output     = "results/parts"
  checkpoint = true
  command    = ["sh", "-c", "mkdir -p ${output} && split -l 1 ${input} ${output}/part_ && for f in ${output}/part_*; do mv $f $f.txt; done"]
}

rule "upper" {
  input   = "results/parts/{p}.txt"
  output  = "results/upper/{p}.txt"
  command = ["sh", "-c", "tr a-z A-Z < ${input} > ${output}"]
}

rule "merge" {
  output = "results/merged.txt"
  gather {
    checkpoint = "split"
    item       = "{p}.txt"
    input      = "results/upper/{p}.txt"
  }
  command = ["sh", "-c", "cat ${join(" ", input.items)} > ${output}"]
}

rule "report" {
  input   = "results/merged.txt"
  output  = "auspice/ncov_{region}.json"
  command = ["sh", "-c", "echo ${wildcards.region} > ${output}"]
}
`

// setupApp writes a build config and workflow into a fresh working
// directory and returns an App over it.
func setupApp(t *testing.T, mutate func(*Config)) (*App, *phyloutil.SafeBuffer, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	wfPath := filepath.Join(dir, "workflow.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testBuildConfig), 0o644))
	require.NoError(t, os.WriteFile(wfPath, []byte(testWorkflow), 0o644))

	raw := Config{
		ConfigPath:    cfgPath,
		WorkflowPaths: []string{wfPath},
		Dir:           dir,
		LogLevel:      "debug",
		Workers:       2,
	}
	if mutate != nil {
		mutate(&raw)
	}
	cfg, err := NewConfig(raw)
	require.NoError(t, err)

	logs := &phyloutil.SafeBuffer{}
	a, err := NewApp(logs, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("PHYLOGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, logs, dir
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		in      Config
		wantErr string
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "defaults",
			in:   Config{ConfigPath: "config.yaml"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ".", c.Dir)
				assert.Equal(t, "text", c.LogFormat)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, executor.KeepGoing, c.Policy)
			},
		},
		{name: "missing config path", in: Config{}, wantErr: "ConfigPath is a required"},
		{name: "bad log format", in: Config{ConfigPath: "c", LogFormat: "xml"}, wantErr: `invalid log format "xml"`},
		{name: "bad log level", in: Config{ConfigPath: "c", LogLevel: "trace"}, wantErr: `invalid log level "trace"`},
		{name: "negative workers", in: Config{ConfigPath: "c", Workers: -1}, wantErr: "workers must not be negative"},
		{name: "negative memory", in: Config{ConfigPath: "c", MemoryMB: -5}, wantErr: "memory budget must not be negative"},
		{name: "port out of range", in: Config{ConfigPath: "c", HealthcheckPort: 70000}, wantErr: "out of range"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(tc.in)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestNewApp_InvalidProject(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	_, err = NewApp(&phyloutil.SafeBuffer{}, cfg)
	assert.ErrorContains(t, err, "failed to load project")
}

func TestApp_Plan(t *testing.T) {
	a, _, _ := setupApp(t, nil)

	g, err := a.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len(), "seed, split, merge and one report per region")

	var out strings.Builder
	require.NoError(t, WritePlan(&out, g))
	table := out.String()
	for _, want := range []string{"seed", "report[region=global]", "report[region=swiss]", "awaits checkpoint", "5 jobs"} {
		assert.Contains(t, table, want)
	}
	assert.Less(t, strings.Index(table, "seed"), strings.Index(table, "split"))
}

func TestApp_Run(t *testing.T) {
	a, logs, dir := setupApp(t, func(c *Config) { c.LogDir = "logs" })
	ctx := context.Background()

	rep, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Succeeded, 8)
	assert.Empty(t, rep.UpToDate)
	assert.Empty(t, rep.Failed)

	merged, err := os.ReadFile(filepath.Join(dir, "results", "merged.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", string(merged))
	swiss, err := os.ReadFile(filepath.Join(dir, "auspice", "ncov_swiss.json"))
	require.NoError(t, err)
	assert.Equal(t, "swiss\n", string(swiss))
	assert.FileExists(t, filepath.Join(dir, "logs", "upper%5Bp=part_aa%5D.log"))

	assert.Contains(t, logs.String(), "run_id="+a.RunID())
	assert.Equal(t, 3.0, testutil.ToFloat64(a.Metrics().Transitions.WithLabelValues("upper", job.Succeeded.String())))

	t.Run("second run is up to date", func(t *testing.T) {
		rep, err := a.Run(ctx)
		require.NoError(t, err)
		assert.Len(t, rep.UpToDate, 8)
		assert.Empty(t, rep.Ran())
	})
}

func TestApp_RunFailure(t *testing.T) {
	a, _, dir := setupApp(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.hcl"), []byte(`
rule "report" {
  output  = "auspice/ncov_{region}.json"
  command = ["sh", "-c", "test ${wildcards.region} = global && echo ok > ${output}"]
}
`), 0o644))
	// Reload so the failing workflow is picked up.
	a, err := NewApp(&phyloutil.SafeBuffer{}, a.config)
	require.NoError(t, err)

	rep, err := a.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, []string{"report[region=swiss]"}, rep.Failed)
	assert.Equal(t, []string{"report[region=global]"}, rep.Succeeded)

	var execErr *executor.JobExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.ExitCode)
}

func TestApp_HealthHandler(t *testing.T) {
	a, _, _ := setupApp(t, nil)
	a.Metrics().Observe(context.Background(), executor.Event{Job: "seed", Template: "seed", State: job.Pending})

	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	testCases := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/health", wantCode: http.StatusOK, wantBody: "OK"},
		{path: "/metrics", wantCode: http.StatusOK, wantBody: `phylogrid_job_transitions_total{state="pending",template="seed"} 1`},
		{path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		{path: "/missing", wantCode: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.wantCode, resp.StatusCode)

			var body strings.Builder
			_, err = io.Copy(&body, resp.Body)
			require.NoError(t, err)
			assert.Contains(t, body.String(), tc.wantBody)
		})
	}
}

func TestApp_HealthCheckServerLifecycle(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		a, _, _ := setupApp(t, nil)
		require.NoError(t, a.healthCheckServer())
		assert.Nil(t, a.httpServer)
		assert.NoError(t, a.closeHealthCheckServer())
	})

	t.Run("busy port", func(t *testing.T) {
		busy, err := net.Listen("tcp", ":0")
		require.NoError(t, err)
		defer busy.Close()
		port := busy.Addr().(*net.TCPAddr).Port

		a, _, _ := setupApp(t, func(c *Config) { c.HealthcheckPort = port })
		_, err = a.Run(context.Background())
		assert.ErrorContains(t, err, "health check server")
	})
}
