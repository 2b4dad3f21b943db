// Package evaluator scores persona responses against the CLASSic rubric:
// Cost, Latency, Accuracy, Security and Stability.
package evaluator

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

// Level selects how many accuracy checks run and whether failures are enforced.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelStrict Level = "strict"
)

// ParseLevel converts a string into a Level. The empty string is medium.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelMedium:
		return LevelMedium, nil
	case LevelLow:
		return LevelLow, nil
	case LevelHigh:
		return LevelHigh, nil
	case LevelStrict:
		return LevelStrict, nil
	default:
		return "", fmt.Errorf("unknown validation level %q (want low, medium, high or strict)", s)
	}
}

// Pricing holds USD rates per 1000 tokens.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// DefaultPricing returns the default per-1K token rates.
func DefaultPricing() Pricing {
	return Pricing{InputPer1K: 0.003, OutputPer1K: 0.015}
}

// DefaultMinSuccessRate is the accuracy floor enforced at the strict level.
const DefaultMinSuccessRate = 0.8

type CostMetrics struct {
	Tokens        int     `json:"tokens"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

type LatencyMetrics struct {
	TotalMs   float64   `json:"total_ms"`
	PerStepMs []float64 `json:"per_step_ms"`
}

type AccuracyMetrics struct {
	TaskSuccessRate   float64  `json:"task_success_rate"`
	ChecksPassed      int      `json:"checks_passed"`
	ChecksFailed      int      `json:"checks_failed"`
	FailedChecks      []string `json:"failed_checks"`
	ValidationsPassed int      `json:"validations_passed"`
	ValidationsFailed int      `json:"validations_failed"`
}

type SecurityMetrics struct {
	PromptInjectionBlocked bool     `json:"prompt_injection_blocked"`
	SafeCodeGenerated      bool     `json:"safe_code_generated"`
	Violations             []string `json:"violations"`
}

// Passed reports whether both security families passed.
func (s SecurityMetrics) Passed() bool {
	return s.PromptInjectionBlocked && s.SafeCodeGenerated
}

type StabilityMetrics struct {
	ConsistencyScore      float64  `json:"consistency_score"`
	HallucinationDetected bool     `json:"hallucination_detected"`
	HallucinationSignals  []string `json:"hallucination_signals,omitempty"`
	PathsEvaluated        int      `json:"paths_evaluated"`
}

// QualityMetrics is the CLASSic record for one invocation.
type QualityMetrics struct {
	Level     Level            `json:"level"`
	Cost      CostMetrics      `json:"cost"`
	Latency   LatencyMetrics   `json:"latency"`
	Accuracy  AccuracyMetrics  `json:"accuracy"`
	Security  SecurityMetrics  `json:"security"`
	Stability StabilityMetrics `json:"stability"`
}

// Score condenses the record into a single [0,1] quality value: accuracy
// weighted with consistency, halved when a security family failed or the
// response shows hallucination signals.
func (m QualityMetrics) Score() float64 {
	score := 0.7*m.Accuracy.TaskSuccessRate + 0.3*m.Stability.ConsistencyScore
	if !m.Security.Passed() {
		score /= 2
	}
	if m.Stability.HallucinationDetected {
		score /= 2
	}
	return score
}

// Input is everything Evaluate looks at.
type Input struct {
	Response      reasoning.InvocationResponse
	Prompt        string
	StartedAt     time.Time
	StepDurations []time.Duration
	Usage         reasoning.Usage
	Consistency   *reasoning.ConsistencyResult
}

// Evaluator computes quality metrics and enforces them per level.
type Evaluator struct {
	level          Level
	pricing        Pricing
	minSuccessRate float64
	now            func() time.Time
	logger         *slog.Logger
}

// Option is a function that configures an Evaluator
type Option func(*Evaluator)

// WithLevel sets the validation level
func WithLevel(level Level) Option {
	return func(e *Evaluator) {
		if level != "" {
			e.level = level
		}
	}
}

// WithPricing sets the token rates
func WithPricing(p Pricing) Option {
	return func(e *Evaluator) {
		e.pricing = p
	}
}

// WithMinSuccessRate sets the accuracy floor enforced at strict level
func WithMinSuccessRate(rate float64) Option {
	return func(e *Evaluator) {
		if rate >= 0 && rate <= 1 {
			e.minSuccessRate = rate
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an evaluator. The default level is medium.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		level:          LevelMedium,
		pricing:        DefaultPricing(),
		minSuccessRate: DefaultMinSuccessRate,
		now:            time.Now,
		logger:         logging.WithComponent("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Level returns the configured level
func (e *Evaluator) Level() Level {
	return e.level
}

// Evaluate scores in. It has no side effects.
func (e *Evaluator) Evaluate(in Input) QualityMetrics {
	resp := in.Response
	return QualityMetrics{
		Level:     e.level,
		Cost:      e.cost(in.Usage),
		Latency:   e.latency(in.StartedAt, in.StepDurations),
		Accuracy:  e.accuracy(resp),
		Security:  security(in.Prompt, resp),
		Stability: stability(resp, in.Consistency),
	}
}

func (e *Evaluator) cost(u reasoning.Usage) CostMetrics {
	return CostMetrics{
		Tokens:        u.Tokens(),
		InputTokens:   u.InputTokens,
		OutputTokens:  u.OutputTokens,
		EstimatedCost: float64(u.InputTokens)/1000*e.pricing.InputPer1K + float64(u.OutputTokens)/1000*e.pricing.OutputPer1K,
	}
}

func (e *Evaluator) latency(started time.Time, steps []time.Duration) LatencyMetrics {
	m := LatencyMetrics{PerStepMs: make([]float64, 0, len(steps))}
	if !started.IsZero() {
		m.TotalMs = float64(e.now().Sub(started).Microseconds()) / 1000
	}
	for _, d := range steps {
		m.PerStepMs = append(m.PerStepMs, float64(d.Microseconds())/1000)
	}
	return m
}

type check struct {
	name string
	ok   bool
}

func (e *Evaluator) accuracy(resp reasoning.InvocationResponse) AccuracyMetrics {
	checks := []check{
		{"has_reasoning", len(resp.Reasoning) >= 1},
		{"confidence_in_range", inUnitRange(resp.Confidence) && inUnitRange(resp.RawConfidence)},
		{"recommendation_length", utf8.RuneCountInString(strings.TrimSpace(resp.Recommendation)) > 10},
	}
	if e.level == LevelHigh || e.level == LevelStrict {
		checks = append(checks,
			check{"reasoning_depth", len(resp.Reasoning) >= 3},
			check{"has_alternatives", len(resp.Alternatives) >= 1},
		)
	}
	if e.level == LevelStrict {
		checks = append(checks,
			check{"has_warnings", len(resp.Warnings) >= 1},
			check{"no_placeholders", len(DetectPlaceholders(resp.Recommendation, resp.CodeOutput)) == 0},
		)
	}

	m := AccuracyMetrics{
		FailedChecks:      []string{},
		ValidationsPassed: len(resp.Validations.Passed),
		ValidationsFailed: len(resp.Validations.Failed),
	}
	for _, c := range checks {
		if c.ok {
			m.ChecksPassed++
		} else {
			m.ChecksFailed++
			m.FailedChecks = append(m.FailedChecks, c.name)
		}
	}
	m.TaskSuccessRate = float64(m.ChecksPassed) / float64(m.ChecksPassed+m.ChecksFailed)
	return m
}

func security(prompt string, resp reasoning.InvocationResponse) SecurityMetrics {
	injections := DetectPromptInjection(prompt, resp.Recommendation)
	unsafe := DetectUnsafeCode(resp.CodeOutput, resp.Recommendation)
	return SecurityMetrics{
		PromptInjectionBlocked: len(injections) == 0,
		SafeCodeGenerated:      len(unsafe) == 0,
		Violations:             append(injections, unsafe...),
	}
}

func stability(resp reasoning.InvocationResponse, cr *reasoning.ConsistencyResult) StabilityMetrics {
	texts := make([]string, 0, len(resp.Reasoning)+1)
	texts = append(texts, resp.Recommendation)
	for _, s := range resp.Reasoning {
		texts = append(texts, s.Thought)
	}
	signals := DetectHallucinationRisk(texts...)

	m := StabilityMetrics{
		ConsistencyScore:      1,
		HallucinationDetected: len(signals) > 0,
		HallucinationSignals:  signals,
	}
	if cr != nil {
		m.ConsistencyScore = cr.ConsensusScore
		m.PathsEvaluated = len(cr.AllPaths)
	}
	return m
}

// Enforce turns threshold violations into typed errors when the level
// enforces them. strict enforces security and accuracy, high enforces
// security only, low and medium only log.
func (e *Evaluator) Enforce(m QualityMetrics, ec errorspkg.Context) error {
	secFailed := !m.Security.Passed()
	accFailed := m.Accuracy.TaskSuccessRate < e.minSuccessRate

	enforceSecurity := m.Level == LevelStrict || m.Level == LevelHigh
	enforceAccuracy := m.Level == LevelStrict

	if secFailed {
		if enforceSecurity {
			return &errorspkg.SecurityError{
				Context:    ec,
				Level:      string(m.Level),
				Violations: m.Security.Violations,
			}
		}
		e.logger.Warn("security check failed",
			"level", m.Level, "run_id", ec.RunID, "role", ec.Role, "action", ec.Action,
			"violations", m.Security.Violations)
	}
	if accFailed {
		if enforceAccuracy {
			return &errorspkg.ValidationError{
				Context:      ec,
				Level:        string(m.Level),
				SuccessRate:  m.Accuracy.TaskSuccessRate,
				MinRate:      e.minSuccessRate,
				FailedChecks: m.Accuracy.FailedChecks,
			}
		}
		e.logger.Warn("validation below threshold",
			"level", m.Level, "run_id", ec.RunID, "role", ec.Role, "action", ec.Action,
			"success_rate", m.Accuracy.TaskSuccessRate, "failed_checks", m.Accuracy.FailedChecks)
	}
	return nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}
