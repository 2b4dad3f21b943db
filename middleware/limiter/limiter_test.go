package limiter

import (
	"context"
	"errors"
	"testing"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/middleware"
)

func TestCallBudget(t *testing.T) {
	pass := func(c *middleware.Context) error { return nil }

	t.Run("allows calls within budget", func(t *testing.T) {
		budget := NewCallBudget(2)
		ctx := middleware.NewContext(context.Background(), nil)

		if err := budget.Execute(ctx, pass); err != nil {
			t.Errorf("first call failed: %v", err)
		}
		if err := budget.Execute(ctx, pass); err != nil {
			t.Errorf("second call failed: %v", err)
		}
		if budget.Remaining() != 0 {
			t.Errorf("expected 0 remaining, got %d", budget.Remaining())
		}
	})

	t.Run("blocks calls beyond budget", func(t *testing.T) {
		budget := NewCallBudget(1)
		ctx := middleware.NewContext(context.Background(), nil)

		budget.Execute(ctx, pass)
		err := budget.Execute(ctx, pass)
		if !errors.Is(err, errorspkg.ErrBudgetExceeded) {
			t.Errorf("expected ErrBudgetExceeded, got %v", err)
		}
	})

	t.Run("can reset counter", func(t *testing.T) {
		budget := NewCallBudget(1)
		ctx := middleware.NewContext(context.Background(), nil)

		budget.Execute(ctx, pass)
		budget.Reset()

		if err := budget.Execute(ctx, pass); err != nil {
			t.Errorf("call after reset failed: %v", err)
		}
		if budget.GetCounter() != 1 {
			t.Errorf("expected counter 1, got %d", budget.GetCounter())
		}
	})

	t.Run("zero budget is uncapped", func(t *testing.T) {
		budget := NewCallBudget(0)
		ctx := middleware.NewContext(context.Background(), nil)
		for i := 0; i < 10; i++ {
			if err := budget.Execute(ctx, pass); err != nil {
				t.Fatalf("call %d failed: %v", i, err)
			}
		}
		if budget.Remaining() != -1 {
			t.Errorf("expected -1 remaining, got %d", budget.Remaining())
		}
	})
}
