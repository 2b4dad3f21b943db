package middleware

import "errors"

var (
	// ErrNoCompletion indicates the chain finished without a provider completion
	ErrNoCompletion = errors.New("middleware chain produced no completion")

	// ErrInvalidContext indicates middleware context is invalid
	ErrInvalidContext = errors.New("invalid middleware context")
)
