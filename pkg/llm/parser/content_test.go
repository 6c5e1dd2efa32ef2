package parser

import "testing"

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "python fence",
			input: "```python\nimport pytest\n\ndef test_x():\n    assert True\n```",
			want:  "import pytest\n\ndef test_x():\n    assert True",
		},
		{
			name:  "bare fence",
			input: "```\nprint('hi')\n```",
			want:  "print('hi')",
		},
		{
			name:  "surrounding whitespace",
			input: "\n\n```py\nx = 1\n```\n",
			want:  "x = 1",
		},
		{
			name:  "no fence",
			input: "  x = 1\n",
			want:  "x = 1",
		},
		{
			name:  "code on fence line",
			input: "```print(1)```",
			want:  "print(1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.want {
				t.Errorf("StripCodeFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"block removed", "<thinking>if x>3 { }</thinking>\n{\"a\":1}", "{\"a\":1}"},
		{"multiple blocks", "<thinking>a</thinking>x<thinking>b</thinking>y", "xy"},
		{"unterminated", "answer<thinking>never closed", "answer"},
		{"no block", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinking(tt.input); got != tt.want {
				t.Errorf("StripThinking() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	input := "Here is the fixed test:\n```python\ndef test_ok():\n    pass\n```\nGood luck."
	want := "def test_ok():\n    pass"
	if got := ExtractCode(input); got != want {
		t.Errorf("ExtractCode() = %q, want %q", got, want)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"object", `{"user_response":"ok"}`, `{"user_response":"ok"}`},
		{"fenced", "```json\n{\"a\": [1, 2]}\n```", `{"a": [1, 2]}`},
		{"prose around", "Sure! {\"a\":1} hope that helps", `{"a":1}`},
		{"array", "result: [{\"title\":\"x\"}]", `[{"title":"x"}]`},
		{"no json", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.input); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
