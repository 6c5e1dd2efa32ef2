package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/testpilot/pkg/types"
)

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []*types.ProgressEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send implements Observer.
func (r *Recorder) Send(_ context.Context, event *types.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*types.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.ProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []types.ProgressEventType {
	events := r.Events()
	out := make([]types.ProgressEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// Steps returns the recorded steps in order.
func (r *Recorder) Steps() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Step
	}
	return out
}

// Multi fans every event out to several observers. Every observer is tried;
// their errors are joined.
type Multi []Observer

// Send implements Observer.
func (m Multi) Send(ctx context.Context, event *types.ProgressEvent) error {
	var errs []error
	for _, obs := range m {
		if obs == nil {
			continue
		}
		if err := obs.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Channel forwards events to a channel, blocking until the receiver takes
// the event or ctx is done.
type Channel chan<- *types.ProgressEvent

// Send implements Observer.
func (c Channel) Send(ctx context.Context, event *types.ProgressEvent) error {
	select {
	case c <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
