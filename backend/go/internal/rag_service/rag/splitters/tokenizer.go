package splitters

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// NewCounter returns the per-word token cost function for a tokenizer name.
// "words" (or empty) counts every word as one token; anything else is a tiktoken encoding.
func NewCounter(tokenizer string) (func(string) int, error) {
	name := strings.TrimSpace(tokenizer)
	if name == "" || name == "words" {
		return nil, nil
	}
	// Using "cl100k_base" which is the tokenizer for text-embedding-3 and gpt-4 family models
	tke, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", name, err)
	}
	return func(w string) int {
		n := len(tke.Encode(" "+w, nil, nil))
		if n < 1 {
			return 1
		}
		return n
	}, nil
}
