package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type validated struct {
	URL     string `json:"url" validate:"required,url"`
	Retries int    `json:"max_retries" validate:"gte=0,lte=10"`
	Limit   int    `json:"limit,omitempty" validate:"omitempty,gt=0"`
	Label   string `validate:"omitempty,min=3"`
	Mode    string `json:"mode,omitempty" validate:"omitempty,oneof=fast slow"`
}

func TestValidateStruct(t *testing.T) {
	valid := validated{URL: "https://example.com", Retries: 3}

	tests := []struct {
		name    string
		mutate  func(v *validated)
		wantErr string
	}{
		{name: "valid", mutate: func(*validated) {}},
		{name: "required", mutate: func(v *validated) { v.URL = "" }, wantErr: "url is required"},
		{name: "url", mutate: func(v *validated) { v.URL = "example" }, wantErr: "url must be a valid URL"},
		{name: "gte", mutate: func(v *validated) { v.Retries = -1 }, wantErr: "max_retries must be greater than or equal to 0"},
		{name: "lte", mutate: func(v *validated) { v.Retries = 11 }, wantErr: "max_retries must be at most 10"},
		{name: "gt", mutate: func(v *validated) { v.Limit = -2 }, wantErr: "limit must be greater than 0"},
		{name: "go field name without json tag", mutate: func(v *validated) { v.Label = "ab" }, wantErr: "Label must be at least 3"},
		{name: "other tag", mutate: func(v *validated) { v.Mode = "medium" }, wantErr: "mode failed oneof validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid
			tt.mutate(&v)
			err := ValidateStruct(v)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestTestCaseValidate(t *testing.T) {
	assert.EqualError(t, TestCase{Description: "no title"}.Validate(), "title is required")
	assert.NoError(t, TestCase{Title: "Login works"}.Validate())
}

func TestFailureAnalysisValidate(t *testing.T) {
	assert.EqualError(t, FailureAnalysis{FixPriority: "high"}.Validate(), "explanation is required")
	assert.NoError(t, FailureAnalysis{Explanation: "The selector changed."}.Validate())
}
