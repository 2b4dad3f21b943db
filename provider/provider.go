// Package provider defines the completion contract every language-model
// backend implements: a system prompt and a user prompt go in, text and token
// counts come out.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Request bundles the inputs of a single completion call.
type Request struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
}

// Completion is the model reply plus the token usage reported by the backend.
type Completion struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (c *Completion) TotalTokens() int {
	if c == nil {
		return 0
	}
	return c.InputTokens + c.OutputTokens
}

// Provider is the completion provider contract. Implementations must return a
// *Error with KindConnection or KindRateLimit for transport and throttling
// failures instead of malformed text.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req *Request) (*Completion, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req *Request) (*Completion, error) {
	return f(ctx, req)
}

// ValidateRequest checks the fields every backend needs.
func ValidateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("completion request cannot be nil")
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return fmt.Errorf("user prompt cannot be empty")
	}
	if req.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative, got %d", req.MaxTokens)
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", req.Temperature)
	}
	return nil
}
