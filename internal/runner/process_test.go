package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/jobid"
)

func shJob(t *testing.T, script string) *job.Job {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return &job.Job{
		ID:      jobid.New("tree", map[string]string{"region": "swiss"}),
		Command: []string{"sh", "-c", script},
	}
}

func TestProcess_Run(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("success captures output and writes log", func(t *testing.T) {
		dir := t.TempDir()
		p := &Process{Dir: dir, Env: []string{"PHYLOGRID_GREETING=hello"}, LogDir: "logs"}

		out, err := p.Run(ctx, shJob(t, `echo "$PHYLOGRID_GREETING"; pwd >&2`))
		require.NoError(t, err)
		assert.Contains(t, string(out), "hello")

		logged, err := os.ReadFile(filepath.Join(dir, "logs", "tree%5Bregion=swiss%5D.log"))
		require.NoError(t, err)
		assert.Equal(t, out, logged)
	})

	t.Run("non-zero exit is an error with exit code", func(t *testing.T) {
		p := &Process{Dir: t.TempDir()}
		out, err := p.Run(ctx, shJob(t, "echo boom; exit 3"))
		require.Error(t, err)
		assert.Contains(t, string(out), "boom")

		var exitErr *exec.ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode())
	})

	t.Run("empty command", func(t *testing.T) {
		p := &Process{}
		_, err := p.Run(ctx, &job.Job{ID: jobid.New("x", nil)})
		require.ErrorContains(t, err, "has no command")
	})

	t.Run("cancelled context kills the process", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := &Process{Dir: t.TempDir()}
		_, err := p.Run(cctx, shJob(t, "sleep 5"))
		require.Error(t, err)
	})
}

func TestLogName(t *testing.T) {
	testCases := []struct {
		key  string
		want string
	}{
		{key: "mask", want: "mask.log"},
		{key: "subsample[region=swiss,subsample=global]", want: "subsample%5Bregion=swiss%2Csubsample=global%5D.log"},
		{key: "align[i=a/b]", want: "align%5Bi=a%2Fb%5D.log"},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			assert.Equal(t, tc.want, LogName(tc.key))
		})
	}

	t.Run("distinct keys never share a file", func(t *testing.T) {
		keys := []string{
			"t[a=x/y]", "t[a=x,y]", "t[a=x_y]", "t[a=x\\,y]", "t[a=x\\]y]",
			"t[a=x]", "t[a=x]]", "t[a=%2F]", "t[a=/]",
		}
		seen := make(map[string]string, len(keys))
		for _, k := range keys {
			name := LogName(k)
			prev, dup := seen[name]
			assert.False(t, dup, "%q and %q both map to %q", prev, k, name)
			seen[name] = k
		}
	})
}
