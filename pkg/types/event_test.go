package types

import (
	"errors"
	"testing"
)

func TestProgressEventType(t *testing.T) {
	tests := []struct {
		eventType ProgressEventType
		expected  string
	}{
		{EventTypeStatus, "status"},
		{EventTypeTestResult, "test_result"},
		{EventTypeSuccess, "success"},
		{EventTypeAnalysis, "analysis"},
		{EventTypeCodeUpdate, "code_update"},
		{EventTypeAnalysisComplete, "analysis_complete"},
		{EventTypeError, "error"},
		{EventTypeFinalFailure, "final_failure"},
		{EventTypeURLInfo, "url_info"},
		{EventTypeAIResponse, "ai_response"},
		{EventTypeActionStart, "action_start"},
		{EventTypeActionComplete, "action_complete"},
		{EventTypeFinalResponse, "final_response"},
		{EventTypeTestOutput, "test_output"},
		{EventTypeConnection, "connection"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}

func TestNewProgressEvent(t *testing.T) {
	event := NewProgressEvent(EventTypeTestResult, "attempt_1_result", map[string]interface{}{"status": "failed"})

	if event.Type != EventTypeTestResult {
		t.Errorf("expected type %s, got %s", EventTypeTestResult, event.Type)
	}
	if event.Step != "attempt_1_result" {
		t.Errorf("expected step attempt_1_result, got %s", event.Step)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if event.Context != nil {
		t.Error("expected context to be nil until set")
	}
}

func TestNewErrorEvent(t *testing.T) {
	event := NewErrorEvent("processing_error", errors.New("boom"))
	if event.Type != EventTypeError {
		t.Errorf("expected type %s, got %s", EventTypeError, event.Type)
	}
	if event.Data != "boom" {
		t.Errorf("expected data boom, got %v", event.Data)
	}

	event = NewErrorEvent("processing_error", nil)
	if event.Data != "" {
		t.Errorf("expected empty data for nil error, got %v", event.Data)
	}
}

func TestNewTestOutputEvent(t *testing.T) {
	event := NewTestOutputEvent("stdout", "test_login.py::test_login PASSED")
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map data, got %T", event.Data)
	}
	if data["stream"] != "stdout" {
		t.Errorf("expected stream stdout, got %v", data["stream"])
	}
	if event.Step != StepTestOutput {
		t.Errorf("expected step %s, got %s", StepTestOutput, event.Step)
	}
}

func TestProgressEventWithContext(t *testing.T) {
	event := NewStatusEvent(StepInitialization, "Starting").
		WithContext("max_retries", 3).
		WithContext("test_name", "Login")

	if len(event.Context) != 2 {
		t.Fatalf("expected 2 context entries, got %d", len(event.Context))
	}
	if event.Context["max_retries"] != 3 {
		t.Errorf("expected max_retries 3, got %v", event.Context["max_retries"])
	}
}

func TestProgressEventIsTerminal(t *testing.T) {
	tests := []struct {
		eventType ProgressEventType
		want      bool
	}{
		{EventTypeSuccess, true},
		{EventTypeFinalFailure, true},
		{EventTypeStatus, false},
		{EventTypeTestResult, false},
		{EventTypeError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event := NewProgressEvent(tt.eventType, "step", nil)
			if got := event.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopedSteps(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{AttemptStep(1, "start"), "attempt_1_start"},
		{AttemptStep(2, "analysis_complete"), "attempt_2_analysis_complete"},
		{AttemptStep(3, ""), "attempt_3"},
		{ActionStep(1, "start"), "action_1_start"},
		{ActionStep(12, "complete"), "action_12_complete"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}
