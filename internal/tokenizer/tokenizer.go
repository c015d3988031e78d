// Package tokenizer defines the counting/truncation capability the
// conversation state manager budgets messages against, plus the
// character-approximation backend used when no exact subword tokenizer is
// configured.
package tokenizer

import "fmt"

// Tokenizer counts and truncates text in token units. Implementations must
// be safe for concurrent use when shared across session workers (see
// spec §5).
type Tokenizer interface {
	// Count returns the number of tokens text encodes to.
	Count(text string) int
	// Truncate returns a prefix of text whose token count is <= max.
	Truncate(text string, max int) string
}

// CharApprox is a character-based approximate tokenizer: one token per four
// bytes, matching the approximation documented in spec §4.D. It requires no
// model weights and is safe for concurrent use (it holds no state).
type CharApprox struct{}

// Count returns floor(len(text) / 4), counting bytes rather than runes to
// match the behavior of the reference implementation this was ported from.
func (CharApprox) Count(text string) int {
	return len(text) / 4
}

// Truncate keeps the first max*4 runes of text. Runes, not bytes, are used
// here (unlike Count) so truncation never splits a multi-byte character.
func (CharApprox) Truncate(text string, max int) string {
	limit := max * 4
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Name identifies the "approx" backend for --tokenizer selection.
func (CharApprox) Name() string { return "approx" }

// Load resolves a --tokenizer flag value to a Tokenizer. "approx" (or the
// empty string) selects CharApprox. No exact subword/BPE tokenizer is
// bundled: none of the libraries available to this module provide one (see
// DESIGN.md), so any other name fails fast rather than being approximated
// silently.
func Load(name string) (Tokenizer, error) {
	switch name {
	case "", "approx":
		return CharApprox{}, nil
	default:
		return nil, fmt.Errorf("tokenizer: unknown backend %q (only \"approx\" is built in)", name)
	}
}
