package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/entrhq/testpilot/pkg/orchestrator"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

const chatHelp = `Commands:
  /session  show the current session
  /reset    drop test cases, code and results, keep the conversation
  /copy     copy the generated test code to the clipboard
  /help     show this help
  exit      leave the chat`

// chatService is what the REPL needs from the orchestrator.
type chatService interface {
	ResolveAndAct(ctx context.Context, sessionID, message string, obs progress.Observer) (*orchestrator.Reply, error)
	Reset(ctx context.Context, sessionID string) types.ActionResult
	Session(sessionID string) (*session.Session, bool)
}

// chatREPL is a turn-by-turn conversation on the terminal.
type chatREPL struct {
	svc       chatService
	sessionID string
	reader    *bufio.Reader
	render    *renderer

	// autoCopy copies generated code after every reply that produced some.
	autoCopy bool
	copy     func(string) error
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		autoCopy  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive testing conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			repl := &chatREPL{
				svc:       a.orch,
				sessionID: sessionID,
				reader:    bufio.NewReader(cmd.InOrStdin()),
				render:    newRenderer(cmd.OutOrStdout(), stdoutIsTerminal()),
				autoCopy:  autoCopy,
				copy:      clipboard.WriteAll,
			}
			return repl.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to use (default: a new id)")
	cmd.Flags().BoolVar(&autoCopy, "copy", false, "Copy generated test code to the clipboard")
	return cmd
}

// Run reads messages until exit, end of input or ctx is cancelled.
func (c *chatREPL) Run(ctx context.Context) error {
	c.render.header("testpilot", "Describe what to test, include the page URL. Type /help for commands, 'exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(c.render.out, "> ")
		input, err := c.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		input = strings.TrimSpace(input)
		switch {
		case input == "exit" || input == "quit":
			return nil
		case input == "":
		case strings.HasPrefix(input, "/"):
			c.command(ctx, input)
		default:
			c.send(ctx, input)
		}

		if eof {
			return nil
		}
	}
}

func (c *chatREPL) send(ctx context.Context, message string) {
	obs := progress.ObserverFunc(func(_ context.Context, ev *types.ProgressEvent) error {
		c.render.event(ev)
		return nil
	})
	reply, err := c.svc.ResolveAndAct(ctx, c.sessionID, message, obs)
	if err != nil {
		c.render.println(errorStyle.Render("✗ " + err.Error()))
		return
	}
	c.render.reply(reply)

	if c.autoCopy && producedCode(reply) {
		c.copyCode()
	}
}

func producedCode(reply *orchestrator.Reply) bool {
	for _, res := range reply.ActionResults {
		if _, ok := res.Get("test_code"); ok {
			return true
		}
	}
	return false
}

func (c *chatREPL) command(ctx context.Context, input string) {
	switch strings.Fields(input)[0] {
	case "/help":
		c.render.println(tipsStyle.Render(chatHelp))
	case "/reset":
		c.render.result(c.svc.Reset(ctx, c.sessionID))
	case "/session":
		s, ok := c.svc.Session(c.sessionID)
		if !ok {
			c.render.println(tipsStyle.Render("nothing in this session yet"))
			return
		}
		c.render.sessions([]session.Summary{s.Summary()})
	case "/copy":
		c.copyCode()
	default:
		c.render.println(errorStyle.Render("unknown command " + input + ", type /help"))
	}
}

func (c *chatREPL) copyCode() {
	s, ok := c.svc.Session(c.sessionID)
	if !ok {
		c.render.println(tipsStyle.Render("no generated code to copy"))
		return
	}
	name, code, ok := s.FirstGeneratedCode()
	if !ok {
		c.render.println(tipsStyle.Render("no generated code to copy"))
		return
	}
	if err := c.copy(code); err != nil {
		c.render.println(errorStyle.Render("✗ failed to copy to clipboard: " + err.Error()))
		return
	}
	c.render.println(successStyle.Render("✓ copied " + name + " to the clipboard"))
}
