package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestClassifyByStatus(t *testing.T) {
	cases := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{429, KindRateLimit, true},
		{503, KindConnection, true},
		{401, KindAuth, false},
		{400, KindInvalidResponse, false},
	}
	for _, tc := range cases {
		err := Classify("claude", tc.status, errors.New("boom"))
		if KindOf(err) != tc.kind {
			t.Errorf("status %d: expected kind %s, got %s", tc.status, tc.kind, KindOf(err))
		}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: expected retryable=%v", tc.status, tc.retryable)
		}
	}
}

func TestClassifyNetworkError(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := Classify("openai", 0, fmt.Errorf("send: %w", netErr))
	if KindOf(err) != KindConnection {
		t.Fatalf("expected connection kind, got %s", KindOf(err))
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", err)) {
		t.Errorf("wrapped connection error should stay retryable")
	}
	if KindOf(Classify("openai", 0, context.DeadlineExceeded)) != KindConnection {
		t.Errorf("deadline exceeded should classify as connection")
	}
}

func TestClassifyKeepsExistingError(t *testing.T) {
	orig := &Error{Provider: "gemini", Kind: KindRateLimit}
	if got := Classify("other", 500, orig); got != error(orig) {
		t.Errorf("Classify should return existing provider errors untouched")
	}
	if Classify("x", 500, nil) != nil {
		t.Errorf("Classify(nil) should be nil")
	}
}

func TestValidateRequest(t *testing.T) {
	if err := ValidateRequest(&Request{UserPrompt: "hi", Temperature: 0.7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRequest(&Request{UserPrompt: "  "}); err == nil {
		t.Errorf("expected empty prompt error")
	}
	if err := ValidateRequest(&Request{UserPrompt: "hi", Temperature: 3}); err == nil {
		t.Errorf("expected temperature error")
	}
}

func TestEnsureUsageEstimatesMissingCounts(t *testing.T) {
	c := &Completion{Text: "two words", OutputTokens: 0, InputTokens: 7}
	EnsureUsage(c, &Request{SystemPrompt: "sys", UserPrompt: "hello there"}, nil)
	if c.InputTokens != 7 {
		t.Errorf("reported input tokens must be kept, got %d", c.InputTokens)
	}
	if c.OutputTokens != 2 {
		t.Errorf("expected 2 estimated output tokens, got %d", c.OutputTokens)
	}
}
