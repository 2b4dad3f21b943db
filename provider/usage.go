package provider

import "github.com/sweetpotato0/ai-conclave/tokenizer"

// EnsureUsage fills in token counts the backend did not report, estimating
// them with counter. Reported counts are left untouched.
func EnsureUsage(c *Completion, req *Request, counter tokenizer.Counter) {
	if c == nil || req == nil {
		return
	}
	if counter == nil {
		counter = tokenizer.NewSimpleCounter()
	}
	if c.InputTokens == 0 {
		c.InputTokens = counter.CountTokens(req.SystemPrompt) + counter.CountTokens(req.UserPrompt)
	}
	if c.OutputTokens == 0 {
		c.OutputTokens = counter.CountTokens(c.Text)
	}
}
