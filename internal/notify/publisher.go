package notify

import (
	"context"
	"sync"
	"time"

	"github.com/vk/phylogrid/internal/ctxlog"
	"github.com/vk/phylogrid/internal/executor"
)

// Event names emitted by a Publisher.
const (
	EventJobState    = "job_state"
	EventRunFinished = "run_finished"
)

// Emitter sends a named event with arguments.
type Emitter interface {
	Emit(event string, args ...any) error
	Close() error
}

// JobState is the payload of a job_state event.
type JobState struct {
	RunID    string    `json:"run_id"`
	Job      string    `json:"job"`
	Template string    `json:"template"`
	State    string    `json:"state"`
	UpToDate bool      `json:"up_to_date,omitempty"`
	Error    string    `json:"error,omitempty"`
	Seconds  float64   `json:"seconds,omitempty"`
	Time     time.Time `json:"time"`
}

// RunSummary is the payload of a run_finished event.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Succeeded int    `json:"succeeded"`
	UpToDate  int    `json:"up_to_date"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

// Publisher turns executor events into socket.io events.
type Publisher struct {
	runID string
	em    Emitter

	// warnOnce limits emit failures to a single warning per run.
	warnOnce sync.Once
}

// NewPublisher creates a Publisher over em. A nil em publishes nothing.
func NewPublisher(runID string, em Emitter) *Publisher {
	return &Publisher{runID: runID, em: em}
}

// Nop returns a Publisher that drops every event.
func Nop() *Publisher {
	return &Publisher{}
}

// Observe publishes ev. It has the executor.Observer signature.
func (p *Publisher) Observe(ctx context.Context, ev executor.Event) {
	if p.em == nil {
		return
	}
	msg := JobState{
		RunID:    p.runID,
		Job:      ev.Job,
		Template: ev.Template,
		State:    ev.State.String(),
		UpToDate: ev.UpToDate,
		Seconds:  ev.Duration.Seconds(),
		Time:     ev.Time,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	p.emit(ctx, EventJobState, msg)
}

// Finish publishes the run summary.
func (p *Publisher) Finish(ctx context.Context, rep *executor.Report) {
	if p.em == nil || rep == nil {
		return
	}
	p.emit(ctx, EventRunFinished, RunSummary{
		RunID:     p.runID,
		Succeeded: len(rep.Succeeded),
		UpToDate:  len(rep.UpToDate),
		Failed:    len(rep.Failed),
		Cancelled: len(rep.Cancelled),
	})
}

// Close releases the connection.
func (p *Publisher) Close() error {
	if p.em == nil {
		return nil
	}
	return p.em.Close()
}

func (p *Publisher) emit(ctx context.Context, event string, payload any) {
	if err := p.em.Emit(event, payload); err != nil {
		p.warnOnce.Do(func() {
			ctxlog.FromContext(ctx).Warn("Could not publish run event.", "event", event, "error", err)
		})
	}
}
