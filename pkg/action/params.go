package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/testpilot/pkg/types"
)

// Params is implemented by every parameter struct.
type Params interface {
	Validate() error
}

// ValidationError reports parameters rejected at the dispatch boundary.
type ValidationError struct {
	Action string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Messages of validation failures the user sees verbatim.
var (
	ErrNoURL        = errors.New("No URL provided")
	ErrNoPythonCode = errors.New("No Python code provided")
	ErrNoQueryOrURL = errors.New("Both query and URL are required")
)

// URLParams is taken by actions that operate on one page.
type URLParams struct {
	URL string `json:"url,omitempty" validate:"omitempty,url"`
}

// Validate implements Params.
func (p *URLParams) Validate() error {
	return types.ValidateStruct(p)
}

// ExtractURLParams are the parameters of extract_url.
type ExtractURLParams struct {
	URL string `json:"url" validate:"url"`
}

// Validate implements Params.
func (p *ExtractURLParams) Validate() error {
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return ErrNoURL
	}
	return types.ValidateStruct(p)
}

// GenerateTestCasesParams are the parameters of generate_test_cases.
type GenerateTestCasesParams struct {
	Requirements string `json:"requirements,omitempty"`
}

// Validate implements Params.
func (p *GenerateTestCasesParams) Validate() error {
	return nil
}

// ExecuteTestParams are the parameters of execute_test.
type ExecuteTestParams struct {
	PythonCode   string `json:"python_code"`
	TestName     string `json:"test_name,omitempty"`
	URL          string `json:"url,omitempty" validate:"omitempty,url"`
	Requirements string `json:"requirements,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
}

// Validate implements Params.
func (p *ExecuteTestParams) Validate() error {
	if strings.TrimSpace(p.PythonCode) == "" {
		return ErrNoPythonCode
	}
	return types.ValidateStruct(p)
}

// ExecuteTestsParams are the parameters of execute_tests.
type ExecuteTestsParams struct {
	TestName   string `json:"test_name,omitempty"`
	URL        string `json:"url,omitempty" validate:"omitempty,url"`
	MaxRetries int    `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
}

// Validate implements Params.
func (p *ExecuteTestsParams) Validate() error {
	return types.ValidateStruct(p)
}

// ModifyTestParams are the parameters of modify_test.
type ModifyTestParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// Validate implements Params.
func (p *ModifyTestParams) Validate() error {
	return nil
}

// RelevantEmbeddingsParams are the parameters of get_relevant_embeddings.
// Zero limits use the retrieval defaults.
type RelevantEmbeddingsParams struct {
	Query       string  `json:"query"`
	URL         string  `json:"url,omitempty" validate:"omitempty,url"`
	MaxDistance float64 `json:"max_distance,omitempty" validate:"gte=0"`
	MaxResults  int     `json:"max_results,omitempty" validate:"gte=0,lte=50"`
}

// Validate implements Params.
func (p *RelevantEmbeddingsParams) Validate() error {
	return types.ValidateStruct(p)
}

// NoParams is used by actions without parameters.
type NoParams struct{}

// Validate implements Params.
func (NoParams) Validate() error {
	return nil
}

// decodeParams converts raw JSON parameters into dst.
func decodeParams(name string, raw map[string]interface{}, dst Params) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return &ValidationError{Action: name, Err: fmt.Errorf("invalid parameters for %s: %v", name, err)}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ValidationError{Action: name, Err: fmt.Errorf("invalid parameters for %s: %v", name, err)}
	}
	return nil
}
