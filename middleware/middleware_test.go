package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/ai-conclave/provider"
)

func TestMiddlewareChain(t *testing.T) {
	t.Run("empty chain executes final handler", func(t *testing.T) {
		chain := NewChain()
		executed := false

		err := chain.Execute(NewContext(context.Background(), nil), func(ctx *Context) error {
			executed = true
			return nil
		})

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !executed {
			t.Error("final handler was not executed")
		}
	})

	t.Run("middleware chain executes in order", func(t *testing.T) {
		order := []string{}

		m1 := &TestMiddleware{name: "m1", order: &order}
		m2 := &TestMiddleware{name: "m2", order: &order}

		chain := NewChain(m1, m2)
		chain.Execute(NewContext(context.Background(), nil), func(c *Context) error {
			order = append(order, "final")
			return nil
		})

		expected := []string{"m1", "m2", "final"}
		if len(order) != len(expected) {
			t.Fatalf("expected %d steps, got %d", len(expected), len(order))
		}
		for i, e := range expected {
			if order[i] != e {
				t.Errorf("expected step %d to be %s, got %s", i, e, order[i])
			}
		}
	})

	t.Run("error stops chain execution", func(t *testing.T) {
		order := []string{}
		m1 := &TestMiddleware{name: "m1", err: errors.New("test error"), order: &order}
		m2 := &TestMiddleware{name: "m2", order: &order}

		chain := NewChain(m1, m2)
		finalCalled := false
		err := chain.Execute(NewContext(context.Background(), nil), func(c *Context) error {
			finalCalled = true
			return nil
		})

		if err == nil {
			t.Error("expected error from middleware")
		}
		if finalCalled {
			t.Error("final handler should not be called after middleware error")
		}
	})
}

func TestWrapProvider(t *testing.T) {
	order := []string{}
	counter := NewCallCounter()
	chain := NewChain(counter, &TestMiddleware{name: "m1", order: &order})

	base := provider.Func(func(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
		order = append(order, "provider")
		return &provider.Completion{Text: "ok " + req.UserPrompt, InputTokens: 3, OutputTokens: 2}, nil
	})

	wrapped := chain.Wrap(base)
	c, err := wrapped.Complete(context.Background(), &provider.Request{UserPrompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "ok hi" {
		t.Errorf("unexpected completion text %q", c.Text)
	}
	if len(order) != 2 || order[0] != "m1" || order[1] != "provider" {
		t.Errorf("unexpected order %v", order)
	}

	usage := counter.Usage()
	if usage.Calls != 1 || usage.InputTokens != 3 || usage.OutputTokens != 2 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestWrapEmptyChainReturnsProvider(t *testing.T) {
	base := provider.Func(func(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
		return &provider.Completion{Text: "x"}, nil
	})
	if got := NewChain().Wrap(base); got == nil {
		t.Fatal("expected provider")
	}
}

func TestCallCounterCountsFailures(t *testing.T) {
	counter := NewCallCounter()
	boom := errors.New("boom")
	wrapped := NewChain(counter).Wrap(provider.Func(func(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
		return nil, boom
	}))

	if _, err := wrapped.Complete(context.Background(), &provider.Request{UserPrompt: "hi"}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error to pass through, got %v", err)
	}
	usage := counter.Usage()
	if usage.Calls != 1 || usage.Failures != 1 {
		t.Errorf("unexpected usage %+v", usage)
	}

	counter.Reset()
	if counter.Usage().Calls != 0 {
		t.Error("reset should zero the counter")
	}
}

func TestContext(t *testing.T) {
	t.Run("new context has empty metadata", func(t *testing.T) {
		ctx := NewContext(context.Background(), nil)
		if ctx.Metadata == nil {
			t.Error("metadata should not be nil")
		}
		if len(ctx.Metadata) != 0 {
			t.Error("metadata should be empty")
		}
	})

	t.Run("context preserves underlying context", func(t *testing.T) {
		baseCtx := context.WithValue(context.Background(), testKey{}, "v")
		ctx := NewContext(baseCtx, nil)
		if ctx.Context() != baseCtx {
			t.Error("underlying context not preserved")
		}
	})

	t.Run("with context shares metadata", func(t *testing.T) {
		ctx := NewContext(context.Background(), nil)
		cp := ctx.WithContext(context.WithValue(context.Background(), testKey{}, "v"))
		cp.Metadata["k"] = "v"
		if ctx.Metadata["k"] != "v" {
			t.Error("metadata should be shared")
		}
		if ctx.Context().Value(testKey{}) != nil {
			t.Error("original context should be untouched")
		}
	})
}

type testKey struct{}

// Helper test middleware
type TestMiddleware struct {
	name  string
	order *[]string
	err   error
}

func (m *TestMiddleware) Name() string {
	return m.name
}

func (m *TestMiddleware) Execute(ctx *Context, next Handler) error {
	*m.order = append(*m.order, m.name)
	if m.err != nil {
		return m.err
	}
	return next(ctx)
}
