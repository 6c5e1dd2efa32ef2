package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/config"
	"github.com/entrhq/testpilot/pkg/llm/llmtest"
	"github.com/entrhq/testpilot/pkg/orchestrator"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/resolver"
	"github.com/entrhq/testpilot/pkg/server"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "testpilot v"+version+"\n", out)
}

func TestSessionsCommands(t *testing.T) {
	provider := llmtest.New(`{"user_response": "Hi!", "actions": [], "session_updates": {"current_url": "https://example.com"}}`)
	orch, err := orchestrator.New(orchestrator.Deps{Resolver: resolver.New(provider)})
	require.NoError(t, err)
	_, err = orch.ResolveAndAct(context.Background(), "s1", "hello", nil)
	require.NoError(t, err)

	ts := httptest.NewServer(server.New(orch, config.ServerConfig{}).Handler())
	defer ts.Close()

	out, err := execute(t, "sessions", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "https://example.com")
	assert.Contains(t, out, "2 messages")

	out, err = execute(t, "sessions", "show", "s1", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"session_id": "s1"`)

	out, err = execute(t, "sessions", "delete", "s1", "--server", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "deleted s1\n", out)

	_, err = execute(t, "sessions", "show", "s1", "--server", ts.URL)
	require.Error(t, err)
	assert.Equal(t, "server returned 404: session not found", err.Error())
}

type fakeChat struct {
	messages []string
	resets   int
	session  *session.Session
}

func (f *fakeChat) ResolveAndAct(ctx context.Context, sessionID, message string, obs progress.Observer) (*orchestrator.Reply, error) {
	f.messages = append(f.messages, message)
	progress.NewReporter(obs).Status(ctx, types.StepProcessingStart, "Processing your request")

	code := "def test_login(page):\n    page.goto('https://example.com')\n"
	f.session = session.New(sessionID)
	f.session.GeneratedCode["test_login.py"] = code
	return &orchestrator.Reply{
		SessionID:    sessionID,
		UserResponse: "Generated a login test.",
		ActionResults: []types.ActionResult{
			types.NewSuccessResult(action.GenerateTestCode, map[string]interface{}{
				"message":   "Generated test code for 'Login'",
				"test_code": code,
			}),
		},
	}, nil
}

func (f *fakeChat) Reset(_ context.Context, _ string) types.ActionResult {
	f.resets++
	return types.NewSuccessResult(action.ClearSession, map[string]interface{}{"message": "Session cleared"})
}

func (f *fakeChat) Session(_ string) (*session.Session, bool) {
	return f.session, f.session != nil
}

func TestChatREPL(t *testing.T) {
	svc := &fakeChat{}
	var out bytes.Buffer
	var copied []string
	repl := &chatREPL{
		svc:       svc,
		sessionID: "s1",
		reader:    bufio.NewReader(strings.NewReader("/copy\n\nwrite a login test for https://example.com\n/session\n/reset\n/bogus\nexit\nnever sent\n")),
		render:    newRenderer(&out, false),
		autoCopy:  true,
		copy: func(s string) error {
			copied = append(copied, s)
			return nil
		},
	}

	require.NoError(t, repl.Run(context.Background()))

	assert.Equal(t, []string{"write a login test for https://example.com"}, svc.messages)
	assert.Equal(t, 1, svc.resets)
	require.Len(t, copied, 1)
	assert.Contains(t, copied[0], "def test_login(page):")

	text := out.String()
	assert.Contains(t, text, "no generated code to copy")
	assert.Contains(t, text, "· Processing your request")
	assert.Contains(t, text, "Generated a login test.")
	assert.Contains(t, text, "✓ generate_test_code: Generated test code for 'Login'")
	assert.Contains(t, text, "page.goto('https://example.com')")
	assert.Contains(t, text, "✓ copied test_login.py to the clipboard")
	assert.Contains(t, text, "✓ clear_session: Session cleared")
	assert.Contains(t, text, "unknown command /bogus")
}

func TestChatREPLStopsAtEndOfInput(t *testing.T) {
	svc := &fakeChat{}
	repl := &chatREPL{
		svc:    svc,
		reader: bufio.NewReader(strings.NewReader("last message without newline")),
		render: newRenderer(&bytes.Buffer{}, false),
		copy:   func(string) error { return nil },
	}

	require.NoError(t, repl.Run(context.Background()))
	assert.Equal(t, []string{"last message without newline"}, svc.messages)
}

func TestRunFinish(t *testing.T) {
	passed := types.ExecutionResult{Status: types.ExecutionSuccess, TestName: "login", Code: "fixed", Attempts: 2, AutoFixed: true}
	failed := types.ExecutionResult{Status: types.ExecutionFailed, TestName: "login", Code: "broken", Error: "AssertionError", FinalStatus: "failed_after_retries"}

	tests := []struct {
		name     string
		result   types.ExecutionResult
		copyCode bool
		copyErr  error
		wantErr  error
		want     []string
		copied   string
	}{
		{
			name:     "passed after a fix",
			result:   passed,
			copyCode: true,
			want:     []string{"✓ Test 'login' passed", "after 2 attempt(s)", "rewritten to pass", "copied the test code"},
			copied:   "fixed",
		},
		{
			name:    "failed",
			result:  failed,
			wantErr: errTestFailed,
			want:    []string{"✗ Test 'login' failed", "AssertionError"},
		},
		{
			name:     "clipboard unavailable",
			result:   passed,
			copyCode: true,
			copyErr:  errors.New("no clipboard utilities available"),
			want:     []string{"failed to copy to clipboard: no clipboard utilities available"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			var copied string
			ro := &runOptions{copyCode: tt.copyCode, output: filepath.Join(t.TempDir(), "test_login.py")}

			err := ro.finish(newRenderer(&out, false), tt.result, func(s string) error {
				copied = s
				return tt.copyErr
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
			if tt.copied != "" {
				assert.Equal(t, tt.copied, copied)
			}

			written, err := os.ReadFile(ro.output)
			require.NoError(t, err)
			assert.Equal(t, tt.result.Code, string(written))
		})
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_home.py")
	require.NoError(t, os.WriteFile(file, []byte("def test_home(page):\n    pass\n"), 0o644))
	empty := filepath.Join(dir, "empty.py")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))

	src, err := readSource(file, nil)
	require.NoError(t, err)
	assert.Contains(t, src, "def test_home")

	src, err = readSource("-", strings.NewReader("print('stdin')"))
	require.NoError(t, err)
	assert.Equal(t, "print('stdin')", src)

	_, err = readSource(empty, nil)
	assert.EqualError(t, err, "test source is empty")

	_, err = readSource(filepath.Join(dir, "missing.py"), nil)
	assert.ErrorContains(t, err, "failed to read test source")
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *types.ProgressEvent
		want  string
	}{
		{name: "status", event: types.NewStatusEvent(types.StepAIRequest, "Understanding your request"), want: "· Understanding your request\n"},
		{name: "error", event: types.NewErrorEvent(types.StepProcessingError, errors.New("boom")), want: "✗ processing_error: boom\n"},
		{name: "output line", event: types.NewTestOutputEvent("stdout", "1 passed"), want: "  │ 1 passed\n"},
		{name: "action start", event: types.NewProgressEvent(types.EventTypeActionStart, types.ActionStep(1, "start"), map[string]interface{}{"action": "extract_url"}), want: "▶ extract_url\n"},
		{name: "final response", event: types.NewProgressEvent(types.EventTypeFinalResponse, types.StepFinalResponse, map[string]interface{}{"message": "hidden"}), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			newRenderer(&out, false).event(tt.event)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
