package errorhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/provider"
)

func TestErrorHandler(t *testing.T) {
	t.Run("catches error from next middleware", func(t *testing.T) {
		errorCaught := false
		handler := NewErrorHandler(func(err error) error {
			errorCaught = true
			return nil
		})

		ctx := middleware.NewContext(context.Background(), nil)
		err := handler.Execute(ctx, func(c *middleware.Context) error {
			return errors.New("test error")
		})

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !errorCaught {
			t.Error("error was not caught")
		}
	})

	t.Run("classify wraps raw errors", func(t *testing.T) {
		handler := NewErrorHandler(Classify("stub"))
		ctx := middleware.NewContext(context.Background(), nil)
		err := handler.Execute(ctx, func(c *middleware.Context) error {
			return context.DeadlineExceeded
		})

		if !provider.IsRetryable(err) {
			t.Errorf("deadline should become a retryable provider error, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("original error should stay in the chain")
		}
	})
}
