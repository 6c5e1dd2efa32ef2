package testexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/types"
)

// ErrPytestMissing is reported when the interpreter cannot import pytest.
var ErrPytestMissing = errors.New("pytest is not installed. Please install pytest: pip install pytest")

var logger = logging.MustLogger("testexec")

// RunResult is the outcome of a runner process that exited on its own.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunError is returned when the runner could not produce a result: the
// interpreter is missing, pytest is not importable, the process could not
// start or it was killed by a timeout or cancellation.
type RunError struct {
	Op       string
	Output   string
	Err      error
	ExitCode int
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Runner executes a test file.
type Runner interface {
	Run(ctx context.Context, path string) (*RunResult, error)
}

// PytestRunner runs test files with `python -m pytest <file> -v --tb=short`.
type PytestRunner struct {
	pythonBin string
	timeout   time.Duration
	workDir   string

	checkMu sync.Mutex
	checked bool
}

// PytestOption configures a PytestRunner.
type PytestOption func(*PytestRunner)

// WithPython sets the interpreter binary.
func WithPython(bin string) PytestOption {
	return func(r *PytestRunner) {
		if bin != "" {
			r.pythonBin = bin
		}
	}
}

// WithTimeout bounds a single pytest run.
func WithTimeout(d time.Duration) PytestOption {
	return func(r *PytestRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithWorkDir sets the working directory of the pytest process.
func WithWorkDir(dir string) PytestOption {
	return func(r *PytestRunner) {
		r.workDir = dir
	}
}

// NewPytestRunner creates a runner using python from PATH and a five minute
// timeout unless overridden.
func NewPytestRunner(opts ...PytestOption) *PytestRunner {
	r := &PytestRunner{
		pythonBin: "python",
		timeout:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckPytest verifies that pytest can be imported. A successful check is
// remembered for the lifetime of the runner.
func (r *PytestRunner) CheckPytest(ctx context.Context) error {
	r.checkMu.Lock()
	defer r.checkMu.Unlock()
	if r.checked {
		return nil
	}

	cmd := exec.CommandContext(ctx, r.pythonBin, "-c", `import pytest; print("pytest available")`)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Warnf("pytest pre-flight failed with %s: %v", r.pythonBin, err)
		return &RunError{Op: "pre-flight check", Output: string(out), Err: ErrPytestMissing, ExitCode: 1}
	}
	r.checked = true
	return nil
}

// Run executes pytest on path. A non-zero exit is a RunResult, not an
// error. Output lines are streamed as test_output events when ctx carries a
// progress reporter.
func (r *PytestRunner) Run(ctx context.Context, path string) (*RunResult, error) {
	if err := r.CheckPytest(ctx); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.pythonBin, "-m", "pytest", path, "-v", "--tb=short")
	cmd.Dir = r.workDir

	stdout, stderr, exitCode, err := runStreaming(execCtx, cmd, progress.FromContext(ctx))
	if err != nil {
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			return nil, &RunError{Op: fmt.Sprintf("test timed out after %s", r.timeout), Output: stdout, Err: execCtx.Err(), ExitCode: -1}
		case ctx.Err() != nil:
			return nil, &RunError{Op: "test run canceled", Output: stdout, Err: ctx.Err(), ExitCode: -1}
		case exitCode == -1:
			return nil, &RunError{Op: "failed to run pytest", Output: stdout, Err: err, ExitCode: -1}
		}
	}

	return &RunResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// runStreaming starts cmd, copies both pipes into buffers and reports each
// line. The exit code is -1 when the process did not exit normally.
func runStreaming(ctx context.Context, cmd *exec.Cmd, reporter *progress.Reporter) (stdout, stderr string, exitCode int, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", -1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", -1, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", -1, fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuilder, stderrBuilder strings.Builder

	wg.Add(2)
	go func() {
		defer wg.Done()
		streamOutput(ctx, stdoutPipe, "stdout", reporter, &stdoutBuilder)
	}()
	go func() {
		defer wg.Done()
		streamOutput(ctx, stderrPipe, "stderr", reporter, &stderrBuilder)
	}()

	// Pipes must be drained before Wait closes them
	wg.Wait()
	execErr := cmd.Wait()

	stdout = stdoutBuilder.String()
	stderr = stderrBuilder.String()

	if execErr != nil {
		var exitErr *exec.ExitError
		if errors.As(execErr, &exitErr) && exitErr.ExitCode() >= 0 {
			return stdout, stderr, exitErr.ExitCode(), nil
		}
		return stdout, stderr, -1, execErr
	}
	return stdout, stderr, 0, nil
}

// streamOutput copies pipe into builder line by line
func streamOutput(ctx context.Context, pipe io.Reader, stream string, reporter *progress.Reporter, builder *strings.Builder) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		builder.WriteString(line)
		builder.WriteByte('\n')

		if reporter.Enabled() {
			reporter.Emit(ctx, types.NewTestOutputEvent(stream, line))
		}
	}
}
