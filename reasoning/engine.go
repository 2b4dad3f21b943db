// Package reasoning implements the self-consistency and self-critique layer:
// several independent attempts at a prompt are generated, voted on by
// conclusion similarity, and optionally refined by a critique pass.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/provider"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxTokens            = 4096
	defaultTemperature          = 0.7
	defaultDiversityTemperature = 0.8
)

// Engine runs reasoning attempts against a completion provider.
// An Engine holds no per-call state and is safe for concurrent use when its
// provider is.
type Engine struct {
	provider             provider.Provider
	prompts              *prompt.Manager
	logger               *slog.Logger
	maxTokens            int
	temperature          float64
	diversityTemperature float64
	attempts             map[Mode]int
	thresholds           map[Mode]float64
}

// Option is a function that configures an Engine
type Option func(*Engine)

// WithMaxTokens sets the completion token limit for every attempt
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTemperature sets the temperature used for single-attempt runs and critique
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithDiversityTemperature sets the temperature used when sampling several attempts
func WithDiversityTemperature(t float64) Option {
	return func(e *Engine) {
		e.diversityTemperature = t
	}
}

// WithAttempts overrides how many attempts a mode makes
func WithAttempts(mode Mode, n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts[mode] = n
		}
	}
}

// WithClusterThreshold overrides the similarity at which two conclusions agree
func WithClusterThreshold(mode Mode, threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.thresholds[mode] = threshold
		}
	}
}

// WithPrompts sets the template manager
func WithPrompts(m *prompt.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.prompts = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over p
func NewEngine(p provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:             p,
		prompts:              prompt.Default(),
		logger:               logging.WithComponent("reasoning"),
		maxTokens:            defaultMaxTokens,
		temperature:          defaultTemperature,
		diversityTemperature: defaultDiversityTemperature,
		attempts: map[Mode]int{
			ModeNone:   1,
			ModeFast:   3,
			ModeRobust: 5,
		},
		thresholds: map[Mode]float64{
			ModeNone:   1,
			ModeFast:   0.5,
			ModeRobust: 0.6,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempts returns how many provider calls mode makes
func (e *Engine) Attempts(mode Mode) int {
	if n, ok := e.attempts[mode]; ok {
		return n
	}
	return 1
}

// RunSelfConsistency generates independent attempts at userPrompt and
// selects a consensus path. Attempts are issued one after another. The first
// failed attempt aborts the run; its error is returned wrapped so
// provider.IsRetryable still reports on it.
func (e *Engine) RunSelfConsistency(ctx context.Context, systemPrompt, userPrompt string, mode Mode) (*ConsistencyResult, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("reasoning engine has no provider")
	}
	if mode == "" {
		mode = ModeNone
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	wrapped, err := e.prompts.Render(prompt.OutputContract, map[string]any{"Prompt": userPrompt})
	if err != nil {
		return nil, err
	}

	n := e.Attempts(mode)
	temperature := e.temperature
	if n > 1 {
		temperature = e.diversityTemperature
	}

	ctx, span := telemetry.Start(ctx, "reasoning.self_consistency",
		attribute.String("reasoning.mode", string(mode)),
		attribute.Int("reasoning.attempts", n),
	)

	result := &ConsistencyResult{Mode: mode, AllPaths: make([]Path, 0, n), Disagreements: []string{}}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			telemetry.End(span, err)
			return nil, err
		}
		completion, err := e.provider.Complete(ctx, &provider.Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   wrapped,
			MaxTokens:    e.maxTokens,
			Temperature:  temperature,
		})
		if err != nil {
			err = fmt.Errorf("reasoning attempt %d/%d: %w", i+1, n, err)
			telemetry.End(span, err)
			return nil, err
		}

		path := parsePath(completion.Text)
		path.InputTokens = completion.InputTokens
		path.OutputTokens = completion.OutputTokens
		result.AllPaths = append(result.AllPaths, path)
		result.Usage = result.Usage.Add(Usage{Calls: 1, InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens})
	}

	if n == 1 {
		result.SelectedPath = result.AllPaths[0]
		result.ConsensusScore = 1
	} else {
		e.applyVote(result, mode)
	}

	span.SetAttributes(attribute.Float64("reasoning.consensus", result.ConsensusScore))
	telemetry.End(span, nil)

	e.logger.Debug("self-consistency finished",
		"mode", mode,
		"paths", len(result.AllPaths),
		"consensus", result.ConsensusScore,
		"selected", result.SelectedIndex,
		"disagreements", len(result.Disagreements),
	)
	return result, nil
}

func (e *Engine) applyVote(result *ConsistencyResult, mode Mode) {
	threshold, ok := e.thresholds[mode]
	if !ok {
		threshold = 0.5
	}
	v := vote(result.AllPaths, threshold)

	result.SelectedIndex = v.selected
	result.SelectedPath = result.AllPaths[v.selected]
	result.ConsensusScore = v.score

	seen := make(map[string]bool)
	for i, p := range result.AllPaths {
		if v.inCluster[i] {
			continue
		}
		if mode == ModeRobust {
			if seen[p.Conclusion] {
				continue
			}
			seen[p.Conclusion] = true
		}
		result.Disagreements = append(result.Disagreements, p.Conclusion)
	}
	if mode == ModeRobust {
		result.Similarities = v.similarities
	}
}
