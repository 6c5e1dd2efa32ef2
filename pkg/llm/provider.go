// Package llm provides abstractions for chat completion providers.
//
// Example usage:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//	    "os"
//
//	    "github.com/entrhq/testpilot/pkg/llm"
//	    "github.com/entrhq/testpilot/pkg/llm/openai"
//	    "github.com/entrhq/testpilot/pkg/types"
//	)
//
//	func main() {
//	    provider, err := openai.NewProvider(
//	        os.Getenv("OPENAI_API_KEY"),
//	        openai.WithModel("gpt-4o-mini"),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    messages := []*types.Message{
//	        types.NewSystemMessage("Reply with a JSON object."),
//	        types.NewUserMessage("Say hello."),
//	    }
//
//	    var out struct{ Greeting string `json:"greeting"` }
//	    if err := llm.CompleteJSON(context.Background(), provider, messages, &out); err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(out.Greeting)
//	}
package llm

import (
	"context"

	"github.com/entrhq/testpilot/pkg/types"
)

// Provider defines the interface for chat completion integrations.
//
// Providers handle API communication only. Prompt construction, decoding of
// structured output and fallbacks belong to the callers, which keeps
// providers reusable and lets tests substitute a scripted fake.
type Provider interface {
	// Complete sends messages to the model and returns the assistant reply.
	//
	// Options tune sampling for a single call. A provider that does not
	// support an option ignores it.
	Complete(ctx context.Context, messages []*types.Message, opts ...CompletionOption) (*types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string
}

// CompletionOptions holds per-call sampling settings.
type CompletionOptions struct {
	// Temperature is nil when the provider default applies.
	Temperature *float64

	// MaxTokens limits the completion length. Zero means no limit.
	MaxTokens int

	// JSONResponse asks the provider to constrain output to a JSON object.
	JSONResponse bool
}

// CompletionOption configures a single completion call.
type CompletionOption func(*CompletionOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(o *CompletionOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens limits the completion length.
func WithMaxTokens(n int) CompletionOption {
	return func(o *CompletionOptions) {
		o.MaxTokens = n
	}
}

// WithJSONResponse requests a JSON object response.
func WithJSONResponse() CompletionOption {
	return func(o *CompletionOptions) {
		o.JSONResponse = true
	}
}

// ApplyOptions folds opts into a CompletionOptions value.
func ApplyOptions(opts ...CompletionOption) CompletionOptions {
	var o CompletionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
