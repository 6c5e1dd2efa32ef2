package types

import (
	"strconv"
	"time"
)

// ProgressEventType defines the type of a progress event.
type ProgressEventType string

const (
	EventTypeStatus           ProgressEventType = "status"            // EventTypeStatus reports a step that is starting.
	EventTypeTestResult       ProgressEventType = "test_result"       // EventTypeTestResult carries the result of one attempt.
	EventTypeSuccess          ProgressEventType = "success"           // EventTypeSuccess reports that a test passed.
	EventTypeAnalysis         ProgressEventType = "analysis"          // EventTypeAnalysis carries failure analysis in progress.
	EventTypeCodeUpdate       ProgressEventType = "code_update"       // EventTypeCodeUpdate carries a rewritten test source.
	EventTypeAnalysisComplete ProgressEventType = "analysis_complete" // EventTypeAnalysisComplete reports the end of an analysis step.
	EventTypeError            ProgressEventType = "error"             // EventTypeError reports a failed step.
	EventTypeFinalFailure     ProgressEventType = "final_failure"     // EventTypeFinalFailure reports that retries were exhausted.
	EventTypeURLInfo          ProgressEventType = "url_info"          // EventTypeURLInfo reports URL detection and indexing.
	EventTypeAIResponse       ProgressEventType = "ai_response"       // EventTypeAIResponse carries the resolved decision.
	EventTypeActionStart      ProgressEventType = "action_start"      // EventTypeActionStart reports an action about to run.
	EventTypeActionComplete   ProgressEventType = "action_complete"   // EventTypeActionComplete carries an action result.
	EventTypeFinalResponse    ProgressEventType = "final_response"    // EventTypeFinalResponse carries the reply to the user.
	EventTypeTestOutput       ProgressEventType = "test_output"       // EventTypeTestOutput carries a line of runner output.
	EventTypeConnection       ProgressEventType = "connection"        // EventTypeConnection reports a transport connection.
)

// Progress steps reported by the fix loop and the orchestrator. Attempt- and
// action-scoped steps are built with AttemptStep and ActionStep.
const (
	StepInitialization  = "initialization"
	StepFinalSuccess    = "final_success"
	StepFinalFailure    = "final_failure"
	StepProcessingStart = "processing_start"
	StepURLProcessing   = "url_processing"
	StepURLProcessed    = "url_processed"
	StepPromptCreation  = "prompt_creation"
	StepAIRequest       = "ai_request"
	StepAIProcessed     = "ai_processed"
	StepFinalResponse   = "final_response"
	StepProcessingError = "processing_error"
	StepTestOutput      = "test_output"
)

// ProgressEvent is a single progress notification. Events for one request
// are delivered in the order they were produced.
type ProgressEvent struct {
	// Timestamp records when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Data is the event payload.
	Data interface{} `json:"data"`

	// Context holds optional extra information about the step.
	Context map[string]interface{} `json:"context,omitempty"`

	// Type indicates the kind of event.
	Type ProgressEventType `json:"type"`

	// Step names the step of the workflow that produced the event.
	Step string `json:"step"`
}

// NewProgressEvent creates a progress event stamped with the current time.
func NewProgressEvent(eventType ProgressEventType, step string, data interface{}) *ProgressEvent {
	return &ProgressEvent{
		Type:      eventType,
		Step:      step,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewStatusEvent creates a status event with a text message.
func NewStatusEvent(step, message string) *ProgressEvent {
	return NewProgressEvent(EventTypeStatus, step, message)
}

// NewErrorEvent creates an error event for a failed step.
func NewErrorEvent(step string, err error) *ProgressEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return NewProgressEvent(EventTypeError, step, msg)
}

// NewTestOutputEvent creates an event for one line of runner output.
func NewTestOutputEvent(stream, line string) *ProgressEvent {
	return NewProgressEvent(EventTypeTestOutput, StepTestOutput, map[string]interface{}{
		"stream": stream,
		"line":   line,
	})
}

// WithContext adds extra context to the event and returns the event for chaining.
func (e *ProgressEvent) WithContext(key string, value interface{}) *ProgressEvent {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsTerminal returns true for events that end a fix loop.
func (e *ProgressEvent) IsTerminal() bool {
	return e.Type == EventTypeSuccess || e.Type == EventTypeFinalFailure
}

// AttemptStep names an attempt-scoped step, for example "attempt_2_analysis".
// An empty suffix yields "attempt_2".
func AttemptStep(attempt int, suffix string) string {
	return scopedStep("attempt", attempt, suffix)
}

// ActionStep names an action-scoped step, for example "action_1_start".
func ActionStep(index int, suffix string) string {
	return scopedStep("action", index, suffix)
}

func scopedStep(prefix string, n int, suffix string) string {
	s := prefix + "_" + strconv.Itoa(n)
	if suffix != "" {
		s += "_" + suffix
	}
	return s
}
