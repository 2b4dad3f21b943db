package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/ai-conclave/tokenizer"
)

var _ tokenizer.Counter = (*Counter)(nil)

// Counter counts tokens with a BPE encoding from tiktoken.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New resolves name as a model first and then as an encoding name
// (e.g. "gpt-4o" or "cl100k_base").
func New(name string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Counter{enc: enc}, nil
}

// CountTokens returns the number of BPE tokens in text.
func (c *Counter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
