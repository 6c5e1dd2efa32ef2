// Package fixloop runs a test, and while it fails, asks a fixer for new
// source and runs that instead, up to a bounded number of retries.
//
// For N retries the loop runs at most N+1 attempts and calls the fixer at
// most N times. A retry only happens when the fixer produced source that
// differs from the source that just failed.
package fixloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/types"
)

const (
	// DefaultMaxRetries is the retry budget when a request does not set one.
	DefaultMaxRetries = 3

	// DefaultMaxDistance and DefaultMaxResults bound the context refetched
	// for each analysis.
	DefaultMaxDistance = 1.8
	DefaultMaxResults  = 3

	// contextUnavailable replaces the retrieval context when refetching fails.
	contextUnavailable = "Error retrieving fresh context."
)

// Fix loop outcomes as recorded in metrics.
const (
	OutcomePassed    = "passed"
	OutcomeAutoFixed = "auto_fixed"
	OutcomeExhausted = "exhausted"
)

var logger *logging.Logger

func init() {
	logger = logging.MustLogger("fixloop")
}

// Executor runs one test attempt. testexec.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, source, testName, url string) types.ExecutionResult
}

// ContextSource fetches retrieval context for a query and target URL.
type ContextSource interface {
	RelevantContext(ctx context.Context, query, url string, maxDistance float64, maxResults int) (string, error)
}

// FixRequest is everything the fixer is told about a failed attempt.
type FixRequest struct {
	Classification *types.FailureClassification
	Source         string
	Output         string
	Error          string
	URL            string
	Context        string
	Requirement    string
	Attempt        int
}

// Fixer produces corrected test source. An empty string means no fix.
type Fixer interface {
	Fix(ctx context.Context, req FixRequest) (string, error)
}

// Request describes one fix loop run.
type Request struct {
	Source      string `json:"code"`
	TestName    string `json:"test_name"`
	URL         string `json:"url"`
	Context     string `json:"context"`
	Requirement string `json:"requirements"`

	// MaxRetries is the retry budget. Zero or less uses the loop default.
	MaxRetries int `json:"max_retries"`
}

// Loop is the retry controller.
type Loop struct {
	executor   Executor
	fixer      Fixer
	contexts   ContextSource
	metrics    *metrics.Metrics
	maxRetries int
}

// Option configures a Loop.
type Option func(*Loop)

// WithContextSource refetches retrieval context before every analysis.
// Without one the request's context is used as is.
func WithContextSource(src ContextSource) Option {
	return func(l *Loop) {
		l.contexts = src
	}
}

// WithMaxRetries sets the default retry budget.
func WithMaxRetries(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithMetrics records loop outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// New creates a loop that runs tests with executor and repairs them with fixer.
func New(executor Executor, fixer Fixer, opts ...Option) *Loop {
	l := &Loop{
		executor:   executor,
		fixer:      fixer,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes req until it passes or the retry budget is spent. The
// returned result is the last attempt's, annotated with the number of
// attempts run and whether the test was auto-fixed. Progress is reported to
// r, which may be nil.
func (l *Loop) Run(ctx context.Context, req Request, r *progress.Reporter) types.ExecutionResult {
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = l.maxRetries
	}
	totalAttempts := maxRetries + 1
	source := req.Source

	// Runner output streams to the same observer as loop progress
	if r != nil {
		ctx = progress.WithReporter(ctx, r)
	}

	r.Report(ctx, types.EventTypeStatus, types.StepInitialization, map[string]interface{}{
		"message":     "Starting test execution process",
		"test_name":   req.TestName,
		"url":         req.URL,
		"max_retries": maxRetries,
	}, nil)

	var result types.ExecutionResult
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		r.Report(ctx, types.EventTypeStatus, types.AttemptStep(attempt, "start"), map[string]interface{}{
			"message":        fmt.Sprintf("Executing test attempt %d/%d", attempt, totalAttempts),
			"attempt":        attempt,
			"total_attempts": totalAttempts,
		}, map[string]interface{}{
			"test_code":         source,
			"test_name":         req.TestName,
			"url":               req.URL,
			"user_requirements": req.Requirement,
		})

		result = l.executor.Execute(ctx, source, fmt.Sprintf("%s (Attempt %d)", req.TestName, attempt), req.URL)
		result.Classification = Classify(result)

		r.Report(ctx, types.EventTypeTestResult, types.AttemptStep(attempt, "result"), map[string]interface{}{
			"attempt":        attempt,
			"status":         result.Status,
			"output":         result.Output,
			"error":          result.Error,
			"execution_time": result.ExecutionTime,
			"exit_code":      result.ExitCode,
		}, nil)

		if result.Passed() {
			result.Attempts = attempt
			result.AutoFixed = attempt > 1
			logger.Infof("test %q passed on attempt %d/%d", req.TestName, attempt, totalAttempts)

			r.Report(ctx, types.EventTypeSuccess, types.StepFinalSuccess, map[string]interface{}{
				"message":        fmt.Sprintf("Test passed on attempt %d", attempt),
				"total_attempts": attempt,
				"auto_fixed":     result.AutoFixed,
				"execution_time": result.ExecutionTime,
				"test_output":    result.Output,
			}, map[string]interface{}{
				"final_test_code": source,
			})

			if result.AutoFixed {
				l.metrics.ObserveFixLoop(OutcomeAutoFixed)
			} else {
				l.metrics.ObserveFixLoop(OutcomePassed)
			}
			return result
		}

		if attempt == totalAttempts {
			break
		}

		fixed, ok := l.analyze(ctx, req, source, result, attempt, r)
		if !ok {
			return l.exhausted(ctx, req, source, result, attempt, r)
		}
		source = fixed
	}

	return l.exhausted(ctx, req, source, result, totalAttempts, r)
}

// analyze asks the fixer for new source after a failed attempt. It reports
// false when no usable fix was produced.
func (l *Loop) analyze(ctx context.Context, req Request, source string, result types.ExecutionResult, attempt int, r *progress.Reporter) (string, bool) {
	r.Report(ctx, types.EventTypeStatus, types.AttemptStep(attempt, "analysis_start"), map[string]interface{}{
		"message": fmt.Sprintf("Test failed on attempt %d, analyzing and fixing...", attempt),
		"attempt": attempt,
	}, nil)

	fixCtx := l.refreshContext(ctx, req)

	r.Report(ctx, types.EventTypeAnalysis, types.AttemptStep(attempt, "analysis"), map[string]interface{}{
		"message":        fmt.Sprintf("Analyzing test failure for attempt %d", attempt),
		"attempt":        attempt,
		"error_summary":  summarize(result.Error, 200),
		"full_error":     result.Error,
		"test_output":    result.Output,
		"classification": result.Classification,
	}, map[string]interface{}{
		"failed_test_code":  source,
		"url":               req.URL,
		"user_requirements": req.Requirement,
		"context_used":      fixCtx,
	})

	fixed, err := l.fixer.Fix(ctx, FixRequest{
		Classification: result.Classification,
		Source:         source,
		Output:         result.Output,
		Error:          result.Error,
		URL:            req.URL,
		Context:        fixCtx,
		Requirement:    req.Requirement,
		Attempt:        attempt,
	})
	if err != nil {
		logger.Warnf("fixer failed on attempt %d of %q: %v", attempt, req.TestName, err)
	}

	if err != nil || strings.TrimSpace(fixed) == "" || strings.TrimSpace(fixed) == strings.TrimSpace(source) {
		r.Report(ctx, types.EventTypeError, types.AttemptStep(attempt, "analysis_failed"), map[string]interface{}{
			"message": fmt.Sprintf("Failed to generate fixed test code for attempt %d", attempt+1),
			"attempt": attempt + 1,
		}, nil)
		return "", false
	}

	r.Report(ctx, types.EventTypeCodeUpdate, types.AttemptStep(attempt, "code_generated"), map[string]interface{}{
		"message":     fmt.Sprintf("Generated improved test code for attempt %d", attempt+1),
		"new_code":    fixed,
		"attempt":     attempt + 1,
		"code_length": len(fixed),
	}, map[string]interface{}{
		"original_code": source,
	})

	r.Report(ctx, types.EventTypeAnalysisComplete, types.AttemptStep(attempt, "analysis_complete"), map[string]interface{}{
		"message": fmt.Sprintf("Analysis complete for attempt %d", attempt),
		"attempt": attempt,
	}, nil)

	return fixed, true
}

func (l *Loop) refreshContext(ctx context.Context, req Request) string {
	if l.contexts == nil {
		return req.Context
	}
	fresh, err := l.contexts.RelevantContext(ctx, req.Requirement, req.URL, DefaultMaxDistance, DefaultMaxResults)
	if err != nil {
		logger.Errorf("failed to refresh context for %q: %v", req.TestName, err)
		return contextUnavailable
	}
	logger.Debugf("fresh context for %q: %d characters", req.TestName, len(fresh))
	return fresh
}

func (l *Loop) exhausted(ctx context.Context, req Request, source string, result types.ExecutionResult, attempts int, r *progress.Reporter) types.ExecutionResult {
	result.Attempts = attempts
	result.AutoFixed = false
	result.FinalStatus = types.FinalStatusFailedAfterRetries
	logger.Infof("test %q failed after %d attempts", req.TestName, attempts)

	r.Report(ctx, types.EventTypeFinalFailure, types.StepFinalFailure, map[string]interface{}{
		"message":        fmt.Sprintf("Test failed after %d attempts", attempts),
		"total_attempts": attempts,
		"last_error":     result.Error,
		"last_output":    result.Output,
		"classification": result.Classification,
	}, map[string]interface{}{
		"final_test_code": source,
	})

	l.metrics.ObserveFixLoop(OutcomeExhausted)
	return result
}

func summarize(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
