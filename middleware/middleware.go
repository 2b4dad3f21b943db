package middleware

import (
	"context"
	"sync"

	"github.com/sweetpotato0/ai-conclave/provider"
)

// Context represents the middleware execution context of one completion call
type Context struct {
	// Request sent to the provider
	Request *provider.Request

	// Completion returned by the provider
	Completion *provider.Completion

	// Error from execution
	Error error

	// Metadata for passing data between middlewares
	Metadata map[string]any

	// Internal state
	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context, req *provider.Request) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Request:  req,
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// WithContext returns a shallow copy of c bound to ctx. Metadata is shared.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.context = ctx
	return &cp
}

// Middleware defines the interface for middleware components.
// Middlewares intercept completion requests and responses on their way to and
// from a provider.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic
	// It receives the current context and a next handler to continue the chain
	// Returning error will stop the middleware chain
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Len returns the number of middlewares in the chain
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

// executeMiddleware recursively executes middlewares in sequence
func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Wrap returns a provider whose calls run through the chain before reaching p.
func (c *MiddlewareChain) Wrap(p provider.Provider) provider.Provider {
	if c == nil || len(c.middlewares) == 0 {
		return p
	}
	return &chainedProvider{chain: c, next: p}
}

type chainedProvider struct {
	chain *MiddlewareChain
	next  provider.Provider
}

func (cp *chainedProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	mctx := NewContext(ctx, req)
	err := cp.chain.Execute(mctx, func(c *Context) error {
		completion, err := cp.next.Complete(c.Context(), c.Request)
		c.Completion = completion
		c.Error = err
		return err
	})
	if err != nil {
		return nil, err
	}
	if mctx.Completion == nil {
		return nil, ErrNoCompletion
	}
	return mctx.Completion, nil
}

// Usage is a snapshot of what a CallCounter has seen.
type Usage struct {
	Calls        int `json:"calls"`
	Failures     int `json:"failures"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CallCounter tallies completion calls and token usage passing through it.
// It never blocks a call.
type CallCounter struct {
	mu    sync.Mutex
	usage Usage
}

// NewCallCounter creates a counting middleware
func NewCallCounter() *CallCounter {
	return &CallCounter{}
}

// Name returns the middleware name
func (m *CallCounter) Name() string {
	return "CallCounter"
}

// Execute counts the call and records token usage
func (m *CallCounter) Execute(ctx *Context, next Handler) error {
	err := next(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Calls++
	if err != nil {
		m.usage.Failures++
		return err
	}
	if ctx.Completion != nil {
		m.usage.InputTokens += ctx.Completion.InputTokens
		m.usage.OutputTokens += ctx.Completion.OutputTokens
	}
	return nil
}

// Usage returns the counts so far
func (m *CallCounter) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Reset zeroes the counts
func (m *CallCounter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = Usage{}
}
