package types

import (
	"encoding/json"
	"fmt"
)

// ActionStatus is the outcome reported for a dispatched action.
type ActionStatus string

const (
	StatusSuccess        ActionStatus = "success"          // StatusSuccess means the action completed.
	StatusFailed         ActionStatus = "failed"           // StatusFailed means a test ran and did not pass.
	StatusError          ActionStatus = "error"            // StatusError means the action could not be completed.
	StatusNoActionNeeded ActionStatus = "no_action_needed" // StatusNoActionNeeded is the result of no_action.
	StatusNotImplemented ActionStatus = "not_implemented"  // StatusNotImplemented marks an action with no behavior yet.
	StatusUnknownAction  ActionStatus = "unknown_action"   // StatusUnknownAction marks a name outside the vocabulary.
)

// ActionResult is the result of one dispatched action. It serializes as a flat
// JSON object: status, action and error next to the action-specific fields.
type ActionResult struct {
	// Data holds action-specific payload fields.
	Data map[string]interface{}

	// Action is the name of the action that produced the result.
	Action string

	// Status is the outcome of the action.
	Status ActionStatus

	// Error describes why the action failed. Empty unless Status is error.
	Error string
}

// NewActionResult creates a result with the given status.
func NewActionResult(action string, status ActionStatus) ActionResult {
	return ActionResult{Action: action, Status: status}
}

// NewSuccessResult creates a success result carrying data.
func NewSuccessResult(action string, data map[string]interface{}) ActionResult {
	return ActionResult{Action: action, Status: StatusSuccess, Data: data}
}

// NewErrorResult creates an error result.
func NewErrorResult(action string, err error) ActionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ActionResult{Action: action, Status: StatusError, Error: msg}
}

// NewErrorResultf creates an error result from a format string.
func NewErrorResultf(action, format string, args ...interface{}) ActionResult {
	return ActionResult{Action: action, Status: StatusError, Error: fmt.Sprintf(format, args...)}
}

// With returns a copy of r with key set to value in its payload.
func (r ActionResult) With(key string, value interface{}) ActionResult {
	data := make(map[string]interface{}, len(r.Data)+1)
	for k, v := range r.Data {
		data[k] = v
	}
	data[key] = value
	r.Data = data
	return r
}

// Get returns a payload field.
func (r ActionResult) Get(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// IsError reports whether the action failed.
func (r ActionResult) IsError() bool {
	return r.Status == StatusError
}

// MarshalJSON flattens the payload next to the status fields.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Action != "" {
		out["action"] = r.Action
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object back into status fields and payload.
func (r *ActionResult) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ActionResult{}
	if s, ok := raw["status"].(string); ok {
		r.Status = ActionStatus(s)
	}
	if a, ok := raw["action"].(string); ok {
		r.Action = a
	}
	if e, ok := raw["error"].(string); ok {
		r.Error = e
	}
	delete(raw, "status")
	delete(raw, "action")
	delete(raw, "error")
	if len(raw) > 0 {
		r.Data = raw
	}
	return nil
}
