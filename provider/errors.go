package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies provider failures.
type Kind string

const (
	KindConnection      Kind = "connection"
	KindRateLimit       Kind = "rate_limit"
	KindAuth            Kind = "auth"
	KindInvalidResponse Kind = "invalid_response"
	KindUnknown         Kind = "unknown"
)

// Error is returned by providers for every backend failure.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry. Nothing in this module
// retries on its own.
func (e *Error) Retryable() bool {
	return e.Kind == KindConnection || e.Kind == KindRateLimit
}

// IsRetryable reports whether err wraps a retryable provider error.
func IsRetryable(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Retryable()
	}
	return false
}

// KindOf returns the provider error kind wrapped in err, or "" if err is not a provider error.
func KindOf(err error) Kind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ""
}

// KindForStatus maps an HTTP status code onto an error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status >= 500:
		return KindConnection
	case status >= 400:
		return KindInvalidResponse
	default:
		return KindUnknown
	}
}

// Classify wraps err as a provider *Error. A non-zero status decides the
// kind; otherwise network and deadline errors count as connection failures.
func Classify(name string, status int, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	kind := KindUnknown
	if status != 0 {
		kind = KindForStatus(status)
	} else if isConnectionError(err) {
		kind = KindConnection
	}
	return &Error{Provider: name, Kind: kind, StatusCode: status, Err: err}
}

// InvalidResponse builds a non-retryable error for replies that carry no usable text.
func InvalidResponse(name string, format string, args ...any) error {
	return &Error{Provider: name, Kind: KindInvalidResponse, Err: fmt.Errorf(format, args...)}
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
