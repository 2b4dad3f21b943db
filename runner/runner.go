package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/workflow"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel deliberations when none is configured.
const DefaultConcurrency = 4

// Deliberator runs one deliberation. *workflow.Workflow satisfies it.
type Deliberator interface {
	Execute(ctx context.Context, task string) (*workflow.Result, error)
}

// Factory builds a fresh Deliberator for each task so runs never share
// per-instance state.
type Factory func() (Deliberator, error)

// Task is a unit of work for the runner
type Task struct {
	ID    string `json:"id" yaml:"id"`
	Input string `json:"task" yaml:"task"`
}

// Result is the outcome of one task
type Result struct {
	TaskID   string           `json:"task_id"`
	Output   *workflow.Result `json:"output,omitempty"`
	Error    error            `json:"-"`
	Duration time.Duration    `json:"duration_ns"`
}

// Runner executes deliberations on separate workflow instances
type Runner struct {
	factory     Factory
	concurrency int
	logger      *slog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithConcurrency caps the number of tasks run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the runner logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a runner
func New(factory Factory, opts ...Option) *Runner {
	r := &Runner{
		factory:     factory,
		concurrency: DefaultConcurrency,
		logger:      logging.WithComponent("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a single task on a new instance
func (r *Runner) Run(ctx context.Context, task Task) *Result {
	start := time.Now()
	res := &Result{TaskID: task.ID}
	defer func() {
		if p := recover(); p != nil {
			res.Error = fmt.Errorf("panic in task %s: %v", task.ID, p)
		}
		res.Duration = time.Since(start)
	}()

	if r.factory == nil {
		res.Error = fmt.Errorf("runner has no workflow factory: %w", errorspkg.ErrInvalidInput)
		return res
	}
	d, err := r.factory()
	if err != nil {
		res.Error = fmt.Errorf("build workflow for task %s: %w", task.ID, err)
		return res
	}
	res.Output, res.Error = d.Execute(ctx, task.Input)
	return res
}

// RunParallel executes tasks concurrently. A failing task does not cancel
// the others; results keep the input order.
func (r *Runner) RunParallel(ctx context.Context, tasks []Task) []*Result {
	results := make([]*Result, len(tasks))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{TaskID: task.ID, Error: err}
				return nil
			}
			results[i] = r.Run(ctx, task)
			r.log(results[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunSequential executes tasks one at a time and stops at the first failure.
// The failing task's result is included.
func (r *Runner) RunSequential(ctx context.Context, tasks []Task) ([]*Result, error) {
	results := make([]*Result, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.Run(ctx, task)
		r.log(res)
		results = append(results, res)
		if res.Error != nil {
			return results, fmt.Errorf("task %s: %w", task.ID, res.Error)
		}
	}
	return results, nil
}

func (r *Runner) log(res *Result) {
	if res.Error != nil {
		r.logger.Warn("task failed", "task_id", res.TaskID, "error", res.Error)
		return
	}
	r.logger.Info("task completed",
		"task_id", res.TaskID,
		"run_id", res.Output.RunID,
		"calls", res.Output.TotalCalls,
		"duration_ms", res.Duration.Milliseconds(),
	)
}
