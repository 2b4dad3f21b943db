package validator

import (
	"fmt"
	"strings"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

// ValidatorFunc validates a request before it reaches the provider
type ValidatorFunc func(*provider.Request) error

// FilterFunc inspects or transforms a completion
type FilterFunc func(*provider.Completion) error

// InputValidator validates and cleans input
type InputValidator struct {
	validator ValidatorFunc
}

// NewInputValidator creates an input validation middleware
func NewInputValidator(validator ValidatorFunc) *InputValidator {
	return &InputValidator{validator: validator}
}

// Name returns the middleware name
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute validates the input
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.Request == nil {
		return middleware.ErrInvalidContext
	}
	if m.validator != nil {
		if err := m.validator(ctx.Request); err != nil {
			return err
		}
	}
	return next(ctx)
}

// ResponseFilter filters or transforms the response
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if ctx.Completion != nil && m.filter != nil {
		return m.filter(ctx.Completion)
	}
	return nil
}

// MaxPromptChars rejects requests whose combined prompts exceed limit characters.
func MaxPromptChars(limit int) ValidatorFunc {
	return func(req *provider.Request) error {
		if n := len(req.SystemPrompt) + len(req.UserPrompt); limit > 0 && n > limit {
			return fmt.Errorf("%w: prompt is %d chars, limit %d", errorspkg.ErrInvalidInput, n, limit)
		}
		return nil
	}
}

// InjectionGuard blocks user prompts that contain prompt-injection phrases.
// The system prompt is trusted and not scanned.
type InjectionGuard struct{}

// NewInjectionGuard creates a prompt-injection guard middleware
func NewInjectionGuard() *InjectionGuard {
	return &InjectionGuard{}
}

// Name returns the middleware name
func (m *InjectionGuard) Name() string {
	return "InjectionGuard"
}

// Execute rejects the call with a *errors.SecurityError carrying the run metadata
func (m *InjectionGuard) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.Request == nil {
		return middleware.ErrInvalidContext
	}
	if hits := evaluator.DetectPromptInjection(ctx.Request.UserPrompt); len(hits) > 0 {
		c := ctx.Context()
		return &errorspkg.SecurityError{
			Context: errorspkg.Context{
				RunID:  runctx.RunID(c),
				Role:   runctx.Role(c),
				Action: runctx.Action(c),
			},
			Level:      "guard",
			Violations: hits,
		}
	}
	return next(ctx)
}

// TrimResponse strips surrounding whitespace from completion text.
func TrimResponse() FilterFunc {
	return func(c *provider.Completion) error {
		c.Text = strings.TrimSpace(c.Text)
		return nil
	}
}
