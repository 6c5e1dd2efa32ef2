package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/types"
)

type runOptions struct {
	url          string
	name         string
	requirements string
	maxRetries   int
	copyCode     bool
	output       string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a Playwright test and repair it until it passes",
		Long: `Run executes a Python Playwright test with pytest. When it fails, the test is
rewritten from the failure output and run again, up to the retry budget.
Use "-" to read the test from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if ro.name == "" && args[0] != "-" {
				ro.name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			r := newRenderer(cmd.OutOrStdout(), stdoutIsTerminal())
			obs := progress.ObserverFunc(func(_ context.Context, ev *types.ProgressEvent) error {
				r.event(ev)
				return nil
			})

			res := a.orch.RunTestWithRetry(cmd.Context(), fixloop.Request{
				Source:      source,
				TestName:    ro.name,
				URL:         ro.url,
				Requirement: ro.requirements,
				MaxRetries:  ro.maxRetries,
			}, obs)
			return ro.finish(r, res, clipboard.WriteAll)
		},
	}

	cmd.Flags().StringVar(&ro.url, "url", "", "URL of the page under test")
	cmd.Flags().StringVar(&ro.name, "name", "", "Test name (default: the file name)")
	cmd.Flags().StringVar(&ro.requirements, "requirements", "", "What the test should verify, used when repairing it")
	cmd.Flags().IntVar(&ro.maxRetries, "retries", 0, "Retry budget (default: fix_loop.max_retries)")
	cmd.Flags().BoolVar(&ro.copyCode, "copy", false, "Copy the final test code to the clipboard")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "Write the final test code to this file")
	return cmd
}

// errTestFailed makes the process exit non-zero when the test did not pass.
var errTestFailed = errors.New("test did not pass")

func (ro *runOptions) finish(r *renderer, res types.ExecutionResult, copyFn func(string) error) error {
	r.execution(res)

	if res.Code != "" {
		if res.AutoFixed {
			r.code(res.Code)
		}
		if ro.output != "" {
			if err := os.WriteFile(ro.output, []byte(res.Code), 0o644); err != nil {
				return fmt.Errorf("failed to write test code: %w", err)
			}
			r.println(successStyle.Render("✓ wrote " + ro.output))
		}
		if ro.copyCode {
			if err := copyFn(res.Code); err != nil {
				r.println(errorStyle.Render("✗ failed to copy to clipboard: " + err.Error()))
			} else {
				r.println(successStyle.Render("✓ copied the test code to the clipboard"))
			}
		}
	}

	if !res.Passed() {
		return errTestFailed
	}
	return nil
}

// readSource reads a test file, or stdin for "-".
func readSource(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read test source: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("test source is empty")
	}
	return string(data), nil
}
