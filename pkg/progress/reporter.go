// Package progress delivers ordered progress events to an observer.
//
// Delivery is synchronous and best effort: the reporter waits for the
// observer to accept each event, logs delivery failures and carries on, so a
// slow or broken client never changes the outcome of the work it watches.
package progress

import (
	"context"

	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/types"
)

var logger = logging.MustLogger("progress")

// Observer receives progress events in the order they are reported.
type Observer interface {
	Send(ctx context.Context, event *types.ProgressEvent) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event *types.ProgressEvent) error

// Send implements Observer.
func (f ObserverFunc) Send(ctx context.Context, event *types.ProgressEvent) error {
	return f(ctx, event)
}

// Reporter builds and delivers progress events. A nil Reporter, or one
// without an observer, drops every event.
type Reporter struct {
	observer Observer
}

// NewReporter creates a reporter for obs. obs may be nil.
func NewReporter(obs Observer) *Reporter {
	return &Reporter{observer: obs}
}

// Enabled reports whether events reach an observer.
func (r *Reporter) Enabled() bool {
	return r != nil && r.observer != nil
}

// Report builds an event and delivers it. extra becomes the event context
// when non-empty.
func (r *Reporter) Report(ctx context.Context, eventType types.ProgressEventType, step string, data interface{}, extra map[string]interface{}) {
	if !r.Enabled() {
		return
	}
	event := types.NewProgressEvent(eventType, step, data)
	for k, v := range extra {
		event.WithContext(k, v)
	}
	r.Emit(ctx, event)
}

// Emit delivers a prepared event.
func (r *Reporter) Emit(ctx context.Context, event *types.ProgressEvent) {
	if !r.Enabled() || event == nil {
		return
	}
	if err := r.observer.Send(ctx, event); err != nil {
		logger.Warnf("failed to deliver %s event for step %s: %v", event.Type, event.Step, err)
	}
}

// Status reports a status message for step.
func (r *Reporter) Status(ctx context.Context, step, message string) {
	r.Report(ctx, types.EventTypeStatus, step, message, nil)
}

// Error reports a failed step.
func (r *Reporter) Error(ctx context.Context, step string, err error) {
	if !r.Enabled() {
		return
	}
	r.Emit(ctx, types.NewErrorEvent(step, err))
}

type reporterKey struct{}

// WithReporter returns a context carrying r, for collaborators that stream
// output deep inside a call chain.
func WithReporter(ctx context.Context, r *Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// FromContext returns the reporter stored in ctx, or nil.
func FromContext(ctx context.Context) *Reporter {
	r, _ := ctx.Value(reporterKey{}).(*Reporter)
	return r
}
