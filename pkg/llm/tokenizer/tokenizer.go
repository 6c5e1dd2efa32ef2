// Package tokenizer counts and trims prompt text in model tokens.
//
// A nil *Tokenizer is valid and uses an approximation of four characters
// per token, so callers can keep working when the encoding cannot be loaded
// (tiktoken fetches its BPE ranks on first use).
package tokenizer

import (
	"fmt"

	"github.com/entrhq/testpilot/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not know.
const DefaultEncoding = "cl100k_base"

// per-message overhead of the chat format
const messageOverhead = 4

// Tokenizer counts tokens for one model encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the encoding for model, falling back to cl100k_base.
func New(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return approximate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens returns the token count of a conversation.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountTokens(msg.Content) + t.CountTokens(string(msg.Role)) + messageOverhead
	}
	return total
}

// Truncate returns the longest prefix of text that fits in maxTokens.
// A non-positive budget returns text unchanged.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || t.CountTokens(text) <= maxTokens {
		return text
	}
	if t == nil || t.enc == nil {
		runes := []rune(text)
		limit := maxTokens * 4
		if limit > len(runes) {
			limit = len(runes)
		}
		return string(runes[:limit])
	}
	tokens := t.enc.Encode(text, nil, nil)
	return t.enc.Decode(tokens[:maxTokens])
}

func approximate(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
