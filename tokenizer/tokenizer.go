package tokenizer

import (
	"strings"
	"unicode"
)

// Counter estimates how many tokens a text costs.
type Counter interface {
	CountTokens(text string) int
}

var _ Counter = (*SimpleCounter)(nil)

// SimpleCounter approximates token counts without a vocabulary file.
// Rules:
//   - letters and digits → one token per continuous run
//   - Han characters → one token each
//   - punctuation → one token each
type SimpleCounter struct{}

// NewSimpleCounter creates a rule-based counter.
func NewSimpleCounter() *SimpleCounter {
	return &SimpleCounter{}
}

// CountTokens returns the number of rule-based tokens in text.
func (c *SimpleCounter) CountTokens(text string) int {
	return len(Split(text))
}

// Split breaks text into rule-based tokens.
func Split(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}

	flush()
	return toks
}
