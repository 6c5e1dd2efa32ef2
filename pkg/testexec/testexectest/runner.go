// Package testexectest provides a scripted testexec.Runner for tests.
package testexectest

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/entrhq/testpilot/pkg/testexec"
)

// ErrExhausted is returned when the fake has no scripted outcomes left.
var ErrExhausted = errors.New("testexectest: no scripted outcomes left")

// Outcome is one scripted run.
type Outcome struct {
	Result *testexec.RunResult
	Err    error
}

// Pass is an outcome with exit code 0.
func Pass(stdout string) Outcome {
	return Outcome{Result: &testexec.RunResult{Stdout: stdout, ExitCode: 0}}
}

// Fail is an outcome with exit code 1.
func Fail(stdout, stderr string) Outcome {
	return Outcome{Result: &testexec.RunResult{Stdout: stdout, Stderr: stderr, ExitCode: 1}}
}

// Run records the file a runner was asked to execute.
type Run struct {
	Path   string
	Source string
	Exists bool
}

// Runner returns scripted outcomes in order and records the source of every
// file it was given. The last outcome repeats once the script runs out when
// Repeat is set.
type Runner struct {
	mu       sync.Mutex
	outcomes []Outcome
	runs     []Run
	Repeat   bool
}

// New creates a fake runner with the given outcomes.
func New(outcomes ...Outcome) *Runner {
	return &Runner{outcomes: outcomes}
}

// Run implements testexec.Runner.
func (r *Runner) Run(ctx context.Context, path string) (*testexec.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	r.runs = append(r.runs, Run{Path: path, Source: string(data), Exists: err == nil})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.outcomes) == 0 {
		return nil, ErrExhausted
	}
	o := r.outcomes[0]
	if len(r.outcomes) > 1 || !r.Repeat {
		r.outcomes = r.outcomes[1:]
	}
	return o.Result, o.Err
}

// Runs returns the recorded runs.
func (r *Runner) Runs() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, len(r.runs))
	copy(out, r.runs)
	return out
}
