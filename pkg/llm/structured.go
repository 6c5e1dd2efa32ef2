package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/testpilot/pkg/llm/parser"
	"github.com/entrhq/testpilot/pkg/types"
)

// ErrInvalidResponse is returned when a completion cannot be decoded into the
// requested shape or fails validation.
var ErrInvalidResponse = errors.New("invalid model response")

// Validator is implemented by decoded values that check their own invariants.
type Validator interface {
	Validate() error
}

// CompleteText returns the trimmed text of a completion with thinking blocks
// removed. An empty reply is an ErrInvalidResponse.
func CompleteText(ctx context.Context, p Provider, messages []*types.Message, opts ...CompletionOption) (string, error) {
	msg, err := p.Complete(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	text := parser.StripThinking(msg.Content)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return text, nil
}

// CompleteJSON requests a JSON object response and decodes it into out.
// If out implements Validator it is validated after decoding. Decode and
// validation failures wrap ErrInvalidResponse; transport failures are
// returned unchanged.
func CompleteJSON(ctx context.Context, p Provider, messages []*types.Message, out interface{}, opts ...CompletionOption) error {
	opts = append(opts, WithJSONResponse())
	text, err := CompleteText(ctx, p, messages, opts...)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// DecodeJSON extracts a JSON value from raw model text and decodes it into out.
func DecodeJSON(text string, out interface{}) error {
	raw := parser.ExtractJSON(text)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: failed to decode JSON: %v", ErrInvalidResponse, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}
