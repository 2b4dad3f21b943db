package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation indicates a response failed the quality rubric at an enforcing level
	ErrValidation = errors.New("response validation failed")

	// ErrSecurity indicates a response or prompt tripped a security check at an enforcing level
	ErrSecurity = errors.New("security check failed")

	// ErrBudgetExceeded indicates the configured call budget has been used up
	ErrBudgetExceeded = errors.New("call budget exceeded")
)

// Context identifies where in a run an error was raised.
type Context struct {
	RunID  string `json:"run_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Action string `json:"action,omitempty"`
}

func (c Context) String() string {
	parts := make([]string, 0, 3)
	if c.RunID != "" {
		parts = append(parts, "run="+c.RunID)
	}
	if c.Role != "" {
		parts = append(parts, "role="+c.Role)
	}
	if c.Action != "" {
		parts = append(parts, "action="+c.Action)
	}
	return strings.Join(parts, " ")
}

// ValidationError is raised when the accuracy rubric falls below the enforced threshold.
type ValidationError struct {
	Context
	Level        string   `json:"level"`
	SuccessRate  float64  `json:"success_rate"`
	MinRate      float64  `json:"min_rate"`
	FailedChecks []string `json:"failed_checks,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at level %s (%s): success rate %.2f below %.2f, failed checks %v",
		e.Level, e.Context, e.SuccessRate, e.MinRate, e.FailedChecks)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SecurityError is raised when prompt-injection or unsafe-code patterns are detected.
type SecurityError struct {
	Context
	Level      string   `json:"level"`
	Violations []string `json:"violations"`
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security check failed at level %s (%s): %s",
		e.Level, e.Context, strings.Join(e.Violations, ", "))
}

// Unwrap lets errors.Is match ErrSecurity.
func (e *SecurityError) Unwrap() error {
	return ErrSecurity
}
