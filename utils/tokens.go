package utils

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ============================================================================
// TOKEN UTILITIES
// ============================================================================

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// getEncoding lazily loads the cl100k_base BPE encoding used by the majority
// of the chat-completion family of models this codebase talks to. It is a
// reasonable approximation for providers (Anthropic, Gemini) that do not
// publish a public tokenizer.
func getEncoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
			return
		}
		enc = e
	})
	return enc
}

// EstimateTokens returns the number of BPE tokens in text, falling back to
// the classic 4-characters-per-token heuristic if the encoder failed to load.
func EstimateTokens(text string) int {
	if e := getEncoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return len(text) / 4
}
