package testexec_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/testexec"
	"github.com/entrhq/testpilot/pkg/testexec/testexectest"
	"github.com/entrhq/testpilot/pkg/types"
)

func TestExecuteClassification(t *testing.T) {
	tests := []struct {
		name     string
		outcome  testexectest.Outcome
		status   types.ExecutionStatus
		exitCode int
		errText  string
	}{
		{
			name:     "exit zero is success",
			outcome:  testexectest.Pass("1 passed"),
			status:   types.ExecutionSuccess,
			exitCode: 0,
		},
		{
			name:     "non-zero exit is failed",
			outcome:  testexectest.Fail("1 failed", "AssertionError"),
			status:   types.ExecutionFailed,
			exitCode: 1,
			errText:  "AssertionError",
		},
		{
			name:     "exit code is preserved",
			outcome:  testexectest.Outcome{Result: &testexec.RunResult{ExitCode: 5}},
			status:   types.ExecutionFailed,
			exitCode: 5,
		},
		{
			name:     "runner error is error",
			outcome:  testexectest.Outcome{Err: errors.New("exec: python: not found")},
			status:   types.ExecutionError,
			exitCode: -1,
			errText:  "exec: python: not found",
		},
		{
			name: "missing pytest",
			outcome: testexectest.Outcome{Err: &testexec.RunError{
				Op: "pre-flight check", Err: testexec.ErrPytestMissing, ExitCode: 1,
			}},
			status:   types.ExecutionError,
			exitCode: 1,
			errText:  "pytest is not installed. Please install pytest: pip install pytest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := testexec.NewEngine(testexectest.New(tt.outcome), testexec.WithTempDir(t.TempDir()))
			res := engine.Execute(context.Background(), "def test_x():\n    pass\n", "Login", "https://example.com")

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, tt.errText, res.Error)
			assert.Equal(t, "Login", res.TestName)
			assert.Equal(t, "https://example.com", res.URL)
			assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
		})
	}
}

func TestExecuteNormalizesSource(t *testing.T) {
	runner := testexectest.New(testexectest.Pass(""))
	engine := testexec.NewEngine(runner, testexec.WithTempDir(t.TempDir()))

	source := "```python\nbrowser = p.chromium.launch(headless=False)\n```"
	res := engine.Execute(context.Background(), source, "t", "")

	runs := runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "browser = p.chromium.launch(headless=True)", runs[0].Source)
	assert.Equal(t, runs[0].Source, res.Code)
	assert.Regexp(t, `test_testpilot_.*\.py$`, filepath.Base(runs[0].Path))
}

func TestExecuteRemovesTempFile(t *testing.T) {
	outcomes := []testexectest.Outcome{
		testexectest.Pass(""),
		testexectest.Fail("", ""),
		{Err: errors.New("boom")},
	}
	for _, o := range outcomes {
		dir := t.TempDir()
		runner := testexectest.New(o)
		testexec.NewEngine(runner, testexec.WithTempDir(dir)).Execute(context.Background(), "pass", "t", "")

		runs := runner.Runs()
		require.Len(t, runs, 1)
		assert.True(t, runs[0].Exists, "file must exist while the runner runs")

		_, err := os.Stat(runs[0].Path)
		assert.True(t, os.IsNotExist(err), "file must be removed after the run")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestExecuteTempDirError(t *testing.T) {
	runner := testexectest.New(testexectest.Pass(""))
	engine := testexec.NewEngine(runner, testexec.WithTempDir(filepath.Join(t.TempDir(), "missing")))

	res := engine.Execute(context.Background(), "pass", "t", "")
	assert.Equal(t, types.ExecutionError, res.Status)
	assert.Contains(t, res.Error, "failed to create test file")
	assert.Empty(t, runner.Runs())
}

func TestExecuteRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	runner := testexectest.New(testexectest.Pass(""), testexectest.Fail("", ""))
	engine := testexec.NewEngine(runner, testexec.WithTempDir(t.TempDir()), testexec.WithMetrics(m))

	engine.Execute(context.Background(), "pass", "a", "")
	engine.Execute(context.Background(), "pass", "b", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TestAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TestAttemptsTotal.WithLabelValues("failed")))
}

func TestRunErrorUnwrap(t *testing.T) {
	err := &testexec.RunError{Op: "pre-flight check", Err: testexec.ErrPytestMissing, ExitCode: 1}
	assert.ErrorIs(t, err, testexec.ErrPytestMissing)
	assert.Equal(t, "pre-flight check: "+testexec.ErrPytestMissing.Error(), err.Error())
}

func requirePytest(t *testing.T) string {
	t.Helper()
	for _, bin := range []string{"python", "python3"} {
		path, err := exec.LookPath(bin)
		if err != nil {
			continue
		}
		if err := exec.Command(path, "-c", "import pytest").Run(); err == nil {
			return path
		}
	}
	t.Skip("python with pytest not available")
	return ""
}

func TestPytestRunner(t *testing.T) {
	python := requirePytest(t)

	rec := progress.NewRecorder()
	ctx := progress.WithReporter(context.Background(), progress.NewReporter(rec))
	engine := testexec.NewEngine(
		testexec.NewPytestRunner(testexec.WithPython(python), testexec.WithTimeout(time.Minute)),
		testexec.WithTempDir(t.TempDir()),
	)

	pass := engine.Execute(ctx, "def test_ok():\n    assert 1 + 1 == 2\n", "ok", "")
	assert.Equal(t, types.ExecutionSuccess, pass.Status)
	assert.Contains(t, pass.Output, "passed")

	fail := engine.Execute(ctx, "def test_bad():\n    assert 1 == 2\n", "bad", "")
	assert.Equal(t, types.ExecutionFailed, fail.Status)
	assert.Equal(t, 1, fail.ExitCode)
	assert.Contains(t, fail.Output, "failed")

	assert.Contains(t, rec.Types(), types.EventTypeTestOutput)
}

func TestPytestRunnerMissingInterpreter(t *testing.T) {
	runner := testexec.NewPytestRunner(testexec.WithPython(filepath.Join(t.TempDir(), "no-python")))
	engine := testexec.NewEngine(runner, testexec.WithTempDir(t.TempDir()))

	res := engine.Execute(context.Background(), "pass", "t", "")
	assert.Equal(t, types.ExecutionError, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, testexec.ErrPytestMissing.Error(), res.Error)
}
