// Package testexec runs generated browser tests with pytest.
//
// The engine prepares model-written source for unattended runs, writes it to
// a temporary file, hands it to a Runner and classifies the outcome. It never
// retries; that is the fix loop's job.
package testexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/types"
)

// tempPattern names the temporary files. pytest only collects files
// starting with test_.
const tempPattern = "test_testpilot_*.py"

// Engine executes a single test source.
type Engine struct {
	runner  Runner
	metrics *metrics.Metrics
	tempDir string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTempDir sets the directory temporary test files are written to.
func WithTempDir(dir string) EngineOption {
	return func(e *Engine) {
		e.tempDir = dir
	}
}

// WithMetrics records every run in m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine on top of runner.
func NewEngine(runner Runner, opts ...EngineOption) *Engine {
	e := &Engine{runner: runner}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute normalizes source, runs it once and returns the classified result.
// Exit code 0 is success, any other exit code is failed, and anything that
// prevented the runner from finishing is error. The temporary file is
// removed on every path.
func (e *Engine) Execute(ctx context.Context, source, testName, url string) types.ExecutionResult {
	start := time.Now()
	code := NormalizeSource(source)

	result := types.ExecutionResult{
		TestName: testName,
		URL:      url,
		Code:     code,
		ExitCode: -1,
	}

	run, err := e.run(ctx, code)
	result.ExecutionTime = types.RoundSeconds(time.Since(start))

	switch {
	case err != nil:
		result.Status = types.ExecutionError
		result.Error = err.Error()
		var runErr *RunError
		if errors.As(err, &runErr) {
			result.ExitCode = runErr.ExitCode
			result.Output = runErr.Output
			if errors.Is(err, ErrPytestMissing) {
				result.Error = ErrPytestMissing.Error()
			}
		}
	case run.ExitCode == 0:
		result.Status = types.ExecutionSuccess
		result.ExitCode = 0
		result.Output = run.Stdout
		result.Error = run.Stderr
	default:
		result.Status = types.ExecutionFailed
		result.ExitCode = run.ExitCode
		result.Output = run.Stdout
		result.Error = run.Stderr
	}

	logger.Infof("test %q finished: status=%s exit=%d time=%.2fs", testName, result.Status, result.ExitCode, result.ExecutionTime)
	e.metrics.ObserveTest(string(result.Status), time.Since(start))
	return result
}

func (e *Engine) run(ctx context.Context, code string) (*RunResult, error) {
	if e.runner == nil {
		return nil, errors.New("no test runner configured")
	}

	f, err := os.CreateTemp(e.tempDir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create test file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warnf("failed to remove test file %s: %v", path, rmErr)
		}
	}()

	if _, err := f.WriteString(code); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write test file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write test file: %w", err)
	}

	logger.Debugf("running %s", path)
	return e.runner.Run(ctx, path)
}
