package fixloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/types"
)

// fakeExecutor returns scripted statuses and records every call.
type fakeExecutor struct {
	mu       sync.Mutex
	statuses []types.ExecutionStatus
	sources  []string
	names    []string
}

func (f *fakeExecutor) Execute(_ context.Context, source, testName, url string) types.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sources = append(f.sources, source)
	f.names = append(f.names, testName)

	status := types.ExecutionFailed
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}

	res := types.ExecutionResult{Status: status, TestName: testName, URL: url, Code: source, ExitCode: 1}
	switch status {
	case types.ExecutionSuccess:
		res.ExitCode = 0
		res.Output = "1 passed"
	case types.ExecutionFailed:
		res.Output = fmt.Sprintf("run %d failed", len(f.sources))
		res.Error = "E   AssertionError: assert 'Welcome' in 'Login'"
	}
	return res
}

// fakeFixer returns "fixed source N" for the Nth call unless overridden.
type fakeFixer struct {
	mu       sync.Mutex
	requests []FixRequest
	fixes    []string
	err      error
}

func (f *fakeFixer) Fix(_ context.Context, req FixRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.fixes) > 0 {
		fix := f.fixes[0]
		f.fixes = f.fixes[1:]
		return fix, nil
	}
	return fmt.Sprintf("fixed source %d", len(f.requests)), nil
}

type fakeContexts struct {
	queries []string
	err     error
}

func (f *fakeContexts) RelevantContext(_ context.Context, query, _ string, maxDistance float64, maxResults int) (string, error) {
	f.queries = append(f.queries, fmt.Sprintf("%s|%.1f|%d", query, maxDistance, maxResults))
	if f.err != nil {
		return "", f.err
	}
	return "fresh context", nil
}

func request(maxRetries int) Request {
	return Request{
		Source:      "original source",
		TestName:    "Login",
		URL:         "https://example.com/login",
		Context:     "initial context",
		Requirement: "user can log in",
		MaxRetries:  maxRetries,
	}
}

func TestRunAlwaysFailingExhaustsAllAttempts(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
	fixer := &fakeFixer{}
	rec := progress.NewRecorder()

	res := New(exec, fixer).Run(context.Background(), request(3), progress.NewReporter(rec))

	assert.Len(t, exec.sources, 4)
	assert.Len(t, fixer.requests, 3)
	assert.Equal(t, 4, res.Attempts)
	assert.False(t, res.AutoFixed)
	assert.Equal(t, types.FinalStatusFailedAfterRetries, res.FinalStatus)
	assert.Equal(t, types.ExecutionFailed, res.Status)
	assert.Equal(t, "run 4 failed", res.Output, "result reflects the last attempt")

	steps := rec.Steps()
	assert.Equal(t, types.StepInitialization, steps[0])
	assert.Equal(t, types.StepFinalFailure, steps[len(steps)-1])
	assert.Contains(t, steps, "attempt_4_result")
	assert.NotContains(t, steps, "attempt_4_analysis_start")
}

func TestRunPassesAfterFix(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed, types.ExecutionSuccess}}
	fixer := &fakeFixer{}
	rec := progress.NewRecorder()

	res := New(exec, fixer).Run(context.Background(), request(3), progress.NewReporter(rec))

	assert.Equal(t, types.ExecutionSuccess, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.AutoFixed)
	assert.Empty(t, res.FinalStatus)
	assert.Nil(t, res.Classification)
	assert.Equal(t, []string{"original source", "fixed source 1"}, exec.sources)
	assert.Equal(t, []string{"Login (Attempt 1)", "Login (Attempt 2)"}, exec.names)

	assert.Equal(t, []string{
		types.StepInitialization,
		"attempt_1_start",
		"attempt_1_result",
		"attempt_1_analysis_start",
		"attempt_1_analysis",
		"attempt_1_code_generated",
		"attempt_1_analysis_complete",
		"attempt_2_start",
		"attempt_2_result",
		types.StepFinalSuccess,
	}, rec.Steps())
}

func TestRunPassesFirstTime(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionSuccess}}
	fixer := &fakeFixer{}

	res := New(exec, fixer).Run(context.Background(), request(3), nil)

	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.AutoFixed)
	assert.Len(t, exec.sources, 1)
	assert.Empty(t, fixer.requests)
}

func TestRunStopsWhenNoFix(t *testing.T) {
	tests := []struct {
		name  string
		fixer *fakeFixer
	}{
		{name: "empty fix", fixer: &fakeFixer{fixes: []string{"   "}}},
		{name: "unchanged fix", fixer: &fakeFixer{fixes: []string{"original source\n"}}},
		{name: "fixer error", fixer: &fakeFixer{err: errors.New("model unavailable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
			rec := progress.NewRecorder()

			res := New(exec, tt.fixer).Run(context.Background(), request(3), progress.NewReporter(rec))

			assert.Len(t, exec.sources, 1)
			assert.Len(t, tt.fixer.requests, 1)
			assert.Equal(t, 1, res.Attempts)
			assert.False(t, res.AutoFixed)
			assert.Equal(t, types.FinalStatusFailedAfterRetries, res.FinalStatus)
			assert.Contains(t, rec.Steps(), "attempt_1_analysis_failed")
			assert.NotContains(t, rec.Steps(), "attempt_2_start")
		})
	}
}

func TestRunErrorStatusTriggersAnalysis(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionError, types.ExecutionSuccess}}
	fixer := &fakeFixer{}

	res := New(exec, fixer).Run(context.Background(), request(2), nil)

	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.AutoFixed)
	assert.Len(t, fixer.requests, 1)
}

func TestRunNeverRepeatsSourceBackToBack(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
	fixer := &fakeFixer{fixes: []string{"a", "b", "b"}}

	res := New(exec, fixer).Run(context.Background(), request(3), nil)

	assert.Equal(t, []string{"original source", "a", "b"}, exec.sources)
	assert.Equal(t, 3, res.Attempts)
	for i := 1; i < len(exec.sources); i++ {
		assert.NotEqual(t, exec.sources[i-1], exec.sources[i])
	}
}

func TestRunBounds(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("max_retries=%d", n), func(t *testing.T) {
			exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
			fixer := &fakeFixer{}

			res := New(exec, fixer).Run(context.Background(), request(n), nil)

			assert.Len(t, exec.sources, n+1)
			assert.Len(t, fixer.requests, n)
			assert.Equal(t, n+1, res.Attempts)
		})
	}
}

func TestRunUsesLoopDefaultRetries(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
	fixer := &fakeFixer{}

	res := New(exec, fixer, WithMaxRetries(1)).Run(context.Background(), request(0), nil)

	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, fixer.requests, 1)
}

func TestFixRequestContents(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed, types.ExecutionSuccess}}
	fixer := &fakeFixer{}
	contexts := &fakeContexts{}

	New(exec, fixer, WithContextSource(contexts)).Run(context.Background(), request(3), nil)

	require.Len(t, fixer.requests, 1)
	req := fixer.requests[0]
	assert.Equal(t, "original source", req.Source)
	assert.Equal(t, "run 1 failed", req.Output)
	assert.Contains(t, req.Error, "AssertionError")
	assert.Equal(t, "https://example.com/login", req.URL)
	assert.Equal(t, "fresh context", req.Context)
	assert.Equal(t, "user can log in", req.Requirement)
	assert.Equal(t, 1, req.Attempt)
	require.NotNil(t, req.Classification)
	assert.Equal(t, types.CategoryAssertionFailed, req.Classification.Category)

	assert.Equal(t, []string{"user can log in|1.8|3"}, contexts.queries)
}

func TestFixRequestContextFallbacks(t *testing.T) {
	t.Run("no context source", func(t *testing.T) {
		exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed, types.ExecutionSuccess}}
		fixer := &fakeFixer{}
		New(exec, fixer).Run(context.Background(), request(3), nil)
		require.Len(t, fixer.requests, 1)
		assert.Equal(t, "initial context", fixer.requests[0].Context)
	})

	t.Run("context source error", func(t *testing.T) {
		exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed, types.ExecutionSuccess}}
		fixer := &fakeFixer{}
		contexts := &fakeContexts{err: errors.New("weaviate down")}
		New(exec, fixer, WithContextSource(contexts)).Run(context.Background(), request(3), nil)
		require.Len(t, fixer.requests, 1)
		assert.Equal(t, "Error retrieving fresh context.", fixer.requests[0].Context)
	})
}

func TestRunRecordsOutcomes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	New(&fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionSuccess}}, &fakeFixer{}, WithMetrics(m)).
		Run(context.Background(), request(1), nil)
	New(&fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed, types.ExecutionSuccess}}, &fakeFixer{}, WithMetrics(m)).
		Run(context.Background(), request(1), nil)
	New(&fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}, &fakeFixer{}, WithMetrics(m)).
		Run(context.Background(), request(1), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FixLoopOutcomesTotal.WithLabelValues(OutcomePassed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FixLoopOutcomesTotal.WithLabelValues(OutcomeAutoFixed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FixLoopOutcomesTotal.WithLabelValues(OutcomeExhausted)))
}

func TestRunEventsAreOrderedAndTerminal(t *testing.T) {
	exec := &fakeExecutor{statuses: []types.ExecutionStatus{types.ExecutionFailed}}
	rec := progress.NewRecorder()

	New(exec, &fakeFixer{}).Run(context.Background(), request(1), progress.NewReporter(rec))

	events := rec.Events()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
	terminal := 0
	for _, e := range events {
		if e.IsTerminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.True(t, events[len(events)-1].IsTerminal())
}
