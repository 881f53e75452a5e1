// Package utils provides small shared helpers.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts per model. Claude models have no
// public tokenizer, so cl100k_base is used as a close approximation; the
// counts feed rate limiting, not billing.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Encodings are expensive to build; cache per encoding name.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// NewTokenCounter creates a counter for a model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	name := encodingNameForModel(model)

	cacheMu.Lock()
	defer cacheMu.Unlock()

	encoding, ok := encodingCache[name]
	if !ok {
		var err error
		encoding, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("loading encoding %s: %w", name, err)
		}
		encodingCache[name] = encoding
	}

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// RoleContent is one role+content pair for message counting.
type RoleContent struct {
	Role    string
	Content string
}

// CountMessages counts tokens across role+content pairs, including the
// per-message framing overhead.
func (tc *TokenCounter) CountMessages(messages []RoleContent) int {
	const tokensPerMessage = 3

	total := 3 // reply priming
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(tc.encoding.Encode(msg.Role, nil, nil))
		total += len(tc.encoding.Encode(msg.Content, nil, nil))
	}
	return total
}

// Model returns the model this counter was built for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// EstimateTokens is the chars/4 fallback for when no counter is available.
func EstimateTokens(text string) int {
	return len(text) / 4
}

func encodingNameForModel(model string) string {
	// Anthropic models approximate well with the GPT-4 encoding.
	return "cl100k_base"
}
