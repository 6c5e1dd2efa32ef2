package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/entrhq/testpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterDeliversInOrder(t *testing.T) {
	rec := NewRecorder()
	r := NewReporter(rec)
	ctx := context.Background()

	r.Status(ctx, types.StepInitialization, "starting")
	r.Report(ctx, types.EventTypeTestResult, types.AttemptStep(1, "result"),
		map[string]interface{}{"status": "failed"}, map[string]interface{}{"attempt": 1})
	r.Error(ctx, types.AttemptStep(1, "analysis_failed"), errors.New("model down"))

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []types.ProgressEventType{types.EventTypeStatus, types.EventTypeTestResult, types.EventTypeError}, rec.Types())
	assert.Equal(t, []string{"initialization", "attempt_1_result", "attempt_1_analysis_failed"}, rec.Steps())
	assert.Equal(t, 1, events[1].Context["attempt"])
	assert.Nil(t, events[0].Context)
	assert.Equal(t, "model down", events[2].Data)
}

func TestReporterSwallowsDeliveryErrors(t *testing.T) {
	calls := 0
	r := NewReporter(ObserverFunc(func(context.Context, *types.ProgressEvent) error {
		calls++
		return errors.New("socket closed")
	}))

	assert.NotPanics(t, func() {
		r.Status(context.Background(), "a", "x")
		r.Status(context.Background(), "b", "y")
	})
	assert.Equal(t, 2, calls)
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter
	assert.False(t, r.Enabled())
	assert.NotPanics(t, func() {
		r.Status(context.Background(), "a", "x")
		r.Error(context.Background(), "a", errors.New("x"))
		r.Emit(context.Background(), types.NewStatusEvent("a", "x"))
	})

	assert.False(t, NewReporter(nil).Enabled())
}

func TestMultiContinuesAfterError(t *testing.T) {
	rec := NewRecorder()
	failing := ObserverFunc(func(context.Context, *types.ProgressEvent) error {
		return errors.New("broken")
	})

	err := Multi{failing, nil, rec}.Send(context.Background(), types.NewStatusEvent("s", "m"))
	assert.ErrorContains(t, err, "broken")
	assert.Len(t, rec.Events(), 1)
}

func TestChannelObserver(t *testing.T) {
	ch := make(chan *types.ProgressEvent, 1)
	obs := Channel(ch)

	require.NoError(t, obs.Send(context.Background(), types.NewStatusEvent("s", "m")))
	got := <-ch
	assert.Equal(t, "s", got.Step)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := Channel(make(chan *types.ProgressEvent))
	assert.ErrorIs(t, blocked.Send(ctx, types.NewStatusEvent("s", "m")), context.Canceled)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	r := NewReporter(NewRecorder())
	ctx := WithReporter(context.Background(), r)
	assert.Same(t, r, FromContext(ctx))
}
