package types

import (
	"fmt"
	"math"
	"time"
)

// ExecutionStatus classifies a single test run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success" // ExecutionSuccess means the runner exited with code 0.
	ExecutionFailed  ExecutionStatus = "failed"  // ExecutionFailed means the runner exited non-zero.
	ExecutionError   ExecutionStatus = "error"   // ExecutionError means the run could not be performed.
)

// FinalStatusFailedAfterRetries marks a result whose fix loop ran out of attempts.
const FinalStatusFailedAfterRetries = "failed_after_retries"

// ExecutionResult describes one test run, or the final run of a fix loop.
// A result is never modified after it is returned; the fix loop copies it to
// add attempt information.
type ExecutionResult struct {
	// Classification is the heuristic failure category of a failed run.
	Classification *FailureClassification `json:"classification,omitempty"`

	// Status is the classification of the run.
	Status ExecutionStatus `json:"status"`

	// TestName is the human-readable name the run was started with.
	TestName string `json:"test_name"`

	// URL is the page under test.
	URL string `json:"url,omitempty"`

	// Output is the captured stdout of the runner.
	Output string `json:"output"`

	// Error is the captured stderr, or the error that prevented the run.
	Error string `json:"error"`

	// Code is the normalized source that was executed.
	Code string `json:"code,omitempty"`

	// FinalStatus is set by the fix loop when attempts are exhausted.
	FinalStatus string `json:"final_status,omitempty"`

	// ExitCode is the runner exit code, -1 when the runner never exited.
	ExitCode int `json:"exit_code"`

	// ExecutionTime is the wall-clock duration in seconds, rounded to hundredths.
	ExecutionTime float64 `json:"execution_time"`

	// Attempts is the number of attempts the fix loop ran.
	Attempts int `json:"attempts,omitempty"`

	// AutoFixed is true when the test passed after at least one rewrite.
	AutoFixed bool `json:"auto_fixed"`
}

// Passed reports whether the run succeeded.
func (r ExecutionResult) Passed() bool {
	return r.Status == ExecutionSuccess
}

// Message returns a one-line summary of the run.
func (r ExecutionResult) Message() string {
	switch r.Status {
	case ExecutionSuccess:
		return fmt.Sprintf("Test '%s' passed", r.TestName)
	case ExecutionFailed:
		return fmt.Sprintf("Test '%s' failed", r.TestName)
	default:
		return fmt.Sprintf("Test '%s' could not be executed", r.TestName)
	}
}

// ToActionResult maps the run onto an action result payload.
func (r ExecutionResult) ToActionResult(action string) ActionResult {
	status := StatusSuccess
	switch r.Status {
	case ExecutionFailed:
		status = StatusFailed
	case ExecutionError:
		status = StatusError
	}

	data := map[string]interface{}{
		"test_name":      r.TestName,
		"url":            r.URL,
		"output":         r.Output,
		"execution_time": r.ExecutionTime,
		"message":        r.Message(),
	}
	if r.Attempts > 0 {
		data["attempts"] = r.Attempts
		data["auto_fixed"] = r.AutoFixed
	}
	if r.FinalStatus != "" {
		data["final_status"] = r.FinalStatus
	}
	if r.Classification != nil {
		data["classification"] = r.Classification
	}
	if r.Code != "" {
		data["code"] = r.Code
	}

	res := ActionResult{Action: action, Status: status, Data: data}
	if r.Error != "" {
		if status == StatusError {
			res.Error = r.Error
		} else {
			res.Data["test_error"] = r.Error
		}
	}
	return res
}

// RoundSeconds converts d to seconds rounded to hundredths.
func RoundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
