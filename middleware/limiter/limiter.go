package limiter

import (
	"fmt"
	"sync"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/middleware"
)

// CallBudget caps the number of completion calls that may pass through it.
// It is a cost guard, not a throughput limiter: once spent it rejects every
// further call until Reset.
type CallBudget struct {
	mu       sync.Mutex
	maxCalls int
	counter  int
}

// NewCallBudget creates a budget middleware. maxCalls <= 0 disables the cap.
func NewCallBudget(maxCalls int) *CallBudget {
	return &CallBudget{maxCalls: maxCalls}
}

// Name returns the middleware name
func (m *CallBudget) Name() string {
	return "CallBudget"
}

// Execute checks the budget
func (m *CallBudget) Execute(ctx *middleware.Context, next middleware.Handler) error {
	m.mu.Lock()
	if m.maxCalls > 0 && m.counter >= m.maxCalls {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d of %d calls used", errorspkg.ErrBudgetExceeded, m.counter, m.maxCalls)
	}
	m.counter++
	m.mu.Unlock()
	return next(ctx)
}

// Reset resets the call counter
func (m *CallBudget) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = 0
}

// GetCounter returns current call count
func (m *CallBudget) GetCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}

// Remaining returns how many calls are left, or -1 when uncapped.
func (m *CallBudget) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxCalls <= 0 {
		return -1
	}
	return m.maxCalls - m.counter
}
