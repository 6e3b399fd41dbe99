package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/phylogrid/internal/executor"
	"github.com/vk/phylogrid/internal/job"
)

func TestRecorder_Observe(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	r := New(reg)

	events := []executor.Event{
		{Job: "mask", Template: "mask", State: job.Succeeded, UpToDate: true},
		{Job: "align[i=1]", Template: "align", State: job.Ready},
		{Job: "align[i=1]", Template: "align", State: job.Running},
		{Job: "align[i=2]", Template: "align", State: job.Ready},
		{Job: "align[i=2]", Template: "align", State: job.Running},
		{Job: "align[i=1]", Template: "align", State: job.Succeeded, Duration: 2 * time.Second},
		{Job: "align[i=2]", Template: "align", State: job.Failed, Duration: time.Second},
		{Job: "aggregate", Template: "aggregate", State: job.Cancelled},
	}
	for _, ev := range events {
		r.Observe(ctx, ev)
	}

	testCases := []struct {
		name     string
		template string
		state    string
		want     float64
	}{
		{name: "align ready", template: "align", state: "ready", want: 2},
		{name: "align running", template: "align", state: "running", want: 2},
		{name: "align succeeded", template: "align", state: "succeeded", want: 1},
		{name: "align failed", template: "align", state: "failed", want: 1},
		{name: "mask up to date counts as succeeded", template: "mask", state: "succeeded", want: 1},
		{name: "aggregate cancelled", template: "aggregate", state: "cancelled", want: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := testutil.ToFloat64(r.Transitions.WithLabelValues(tc.template, tc.state))
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(r.Running))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.UpToDate.WithLabelValues("mask")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.Duration))

	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestRecorder_RunningGauge(t *testing.T) {
	ctx := context.Background()
	r := New(prometheus.NewRegistry())

	r.Observe(ctx, executor.Event{Job: "tree[region=swiss]", Template: "tree", State: job.Running})
	r.Observe(ctx, executor.Event{Job: "refine[region=swiss]", Template: "refine", State: job.Running})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Running))

	// A job cancelled mid-run leaves the gauge as well.
	r.Observe(ctx, executor.Event{Job: "tree[region=swiss]", Template: "tree", State: job.Cancelled})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Running))

	// A job that never ran does not touch the gauge.
	r.Observe(ctx, executor.Event{Job: "export[region=swiss]", Template: "export", State: job.Cancelled})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Running))
}

func TestRecorder_AsObserver(t *testing.T) {
	r := New(prometheus.NewRegistry())
	var o executor.Observer = r.Observe
	o(context.Background(), executor.Event{Job: "filter", Template: "filter", State: job.Pending})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Transitions.WithLabelValues("filter", "pending")))
}
