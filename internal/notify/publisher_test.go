package notify

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/phylogrid/internal/executor"
	"github.com/vk/phylogrid/internal/job"
	"github.com/vk/phylogrid/internal/testutil"
)

type emitted struct {
	event string
	args  []any
}

type fakeEmitter struct {
	mu     sync.Mutex
	got    []emitted
	err    error
	closed bool
}

func (f *fakeEmitter) Emit(event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, emitted{event: event, args: args})
	return nil
}

func (f *fakeEmitter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Observe(t *testing.T) {
	ctx, _ := testutil.Context(t)
	em := &fakeEmitter{}
	p := NewPublisher("run-1", em)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p.Observe(ctx, executor.Event{Job: "align[i=1]", Template: "align", State: job.Running, Time: now})
	p.Observe(ctx, executor.Event{
		Job: "align[i=1]", Template: "align", State: job.Failed,
		Err: errors.New("exit status 1"), Duration: 1500 * time.Millisecond, Time: now,
	})

	require.Len(t, em.got, 2)
	assert.Equal(t, EventJobState, em.got[0].event)
	require.Len(t, em.got[1].args, 1)
	assert.Equal(t, JobState{
		RunID:    "run-1",
		Job:      "align[i=1]",
		Template: "align",
		State:    "failed",
		Error:    "exit status 1",
		Seconds:  1.5,
		Time:     now,
	}, em.got[1].args[0])
}

func TestPublisher_Finish(t *testing.T) {
	ctx, _ := testutil.Context(t)
	em := &fakeEmitter{}
	p := NewPublisher("run-2", em)

	p.Finish(ctx, &executor.Report{
		Succeeded: []string{"filter", "mask"},
		UpToDate:  []string{"filter"},
		Failed:    []string{"tree[region=swiss]"},
		Cancelled: []string{"refine[region=swiss]", "export[region=swiss]"},
	})

	require.Len(t, em.got, 1)
	assert.Equal(t, EventRunFinished, em.got[0].event)
	assert.Equal(t, RunSummary{RunID: "run-2", Succeeded: 2, UpToDate: 1, Failed: 1, Cancelled: 2}, em.got[0].args[0])

	require.NoError(t, p.Close())
	assert.True(t, em.closed)
}

func TestPublisher_EmitErrorsWarnOnce(t *testing.T) {
	ctx, logs := testutil.Context(t)
	p := NewPublisher("run-3", &fakeEmitter{err: errors.New("socket.io client is not connected")})

	for range 3 {
		p.Observe(ctx, executor.Event{Job: "mask", Template: "mask", State: job.Running})
	}
	assert.Equal(t, 1, countLines(logs.String(), "Could not publish run event."))
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	p := Nop()
	p.Observe(ctx, executor.Event{Job: "mask", State: job.Running})
	p.Finish(ctx, &executor.Report{})
	assert.NoError(t, p.Close())
}

func TestDial(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("relative URL", func(t *testing.T) {
		_, err := Dial(ctx, "run", Options{URL: "/socket.io/"})
		assert.ErrorContains(t, err, "must be absolute")
	})

	t.Run("unreachable server", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())

		_, err = Dial(ctx, "run", Options{URL: "http://" + addr + "/socket.io/", ConnectTimeout: 300 * time.Millisecond})
		assert.Error(t, err)
	})
}

func countLines(s, substr string) int {
	n := 0
	for line := range strings.Lines(s) {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}
