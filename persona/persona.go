// Package persona implements the four fixed roles of a deliberation. Every
// persona shares one invocation path (self-consistency, optional
// self-critique, evaluation, enforcement) and differs only in its system
// instruction and the prompts its convenience methods render.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/reasoning"
	"github.com/sweetpotato0/ai-conclave/runctx"
	"go.opentelemetry.io/otel/attribute"
)

// Role names a persona.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleFixer       Role = "fixer"
	RoleImplementer Role = "implementer"
	RoleCritic      Role = "critic"
)

// Roles returns every role in pipeline order.
func Roles() []Role {
	return []Role{RolePlanner, RoleFixer, RoleImplementer, RoleCritic}
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := constructors[r]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", errorspkg.ErrInvalidInput, s)
	}
	return r, nil
}

// InvocationResult is everything one persona invocation produced.
type InvocationResult struct {
	Role        Role                         `json:"role"`
	Response    reasoning.InvocationResponse `json:"response"`
	Metrics     evaluator.QualityMetrics     `json:"metrics"`
	Consistency *reasoning.ConsistencyResult `json:"consistency,omitempty"`
	Critique    *reasoning.CritiqueResult    `json:"critique,omitempty"`
	Usage       reasoning.Usage              `json:"usage"`
	Duration    time.Duration                `json:"duration"`
}

// Persona is the capability every role implements.
type Persona interface {
	Role() Role
	SystemPrompt() string
	Invoke(ctx context.Context, prompt string) (*InvocationResult, error)
}

// Deps are the collaborators a persona delegates to.
type Deps struct {
	Engine    *reasoning.Engine
	Evaluator *evaluator.Evaluator
	Prompts   *prompt.Manager
}

type settings struct {
	mode         reasoning.Mode
	selfCritique bool
	system       string
	logger       *slog.Logger
}

// Option is a function that configures a persona
type Option func(*settings)

// WithMode sets the self-consistency mode
func WithMode(mode reasoning.Mode) Option {
	return func(s *settings) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithSelfCritique enables or disables the self-critique pass
func WithSelfCritique(enable bool) Option {
	return func(s *settings) {
		s.selfCritique = enable
	}
}

// WithSystemPrompt replaces the role's built-in instruction
func WithSystemPrompt(system string) Option {
	return func(s *settings) {
		if strings.TrimSpace(system) != "" {
			s.system = system
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// core is the shared invocation path embedded by every persona.
type core struct {
	role         Role
	system       string
	mode         reasoning.Mode
	selfCritique bool
	engine       *reasoning.Engine
	evaluator    *evaluator.Evaluator
	prompts      *prompt.Manager
	logger       *slog.Logger
}

func newCore(role Role, instruction string, deps Deps, opts ...Option) core {
	s := &settings{
		mode:   reasoning.ModeNone,
		system: instruction,
		logger: logging.WithComponent("persona"),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := core{
		role:         role,
		system:       s.system,
		mode:         s.mode,
		selfCritique: s.selfCritique,
		engine:       deps.Engine,
		evaluator:    deps.Evaluator,
		prompts:      deps.Prompts,
		logger:       s.logger.With("role", string(role)),
	}
	if c.evaluator == nil {
		c.evaluator = evaluator.New()
	}
	if c.prompts == nil {
		c.prompts = prompt.Default()
	}
	return c
}

// Role returns the persona's role
func (c *core) Role() Role {
	return c.role
}

// SystemPrompt returns the persona's system instruction
func (c *core) SystemPrompt() string {
	return c.system
}

// Invoke runs the shared invocation path for userPrompt. Unparseable model
// output never fails the call. A typed validation or security error is
// returned only when the evaluator's level enforces it.
func (c *core) Invoke(ctx context.Context, userPrompt string) (*InvocationResult, error) {
	if c.engine == nil {
		return nil, fmt.Errorf("persona %s has no reasoning engine", c.role)
	}
	if strings.TrimSpace(userPrompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt for %s", errorspkg.ErrInvalidInput, c.role)
	}

	started := time.Now()
	ctx = runctx.WithRole(ctx, string(c.role))
	ctx, span := telemetry.Start(ctx, "persona.invoke",
		attribute.String("persona.role", string(c.role)),
		attribute.String("reasoning.mode", string(c.mode)),
	)

	cr, err := c.engine.RunSelfConsistency(ctx, c.system, userPrompt, c.mode)
	if err != nil {
		err = fmt.Errorf("%s invoke: %w", c.role, err)
		telemetry.End(span, err)
		return nil, err
	}
	steps := []time.Duration{time.Since(started)}
	usage := cr.Usage
	resp := reasoning.ParseResponse(cr.SelectedPath.Raw)

	var critique *reasoning.CritiqueResult
	if c.selfCritique {
		critStart := time.Now()
		critique = c.engine.ApplySelfCritique(ctx, resp.JSON(), c.system)
		usage = usage.Add(critique.Usage)
		if critique.Applied {
			resp = reasoning.ParseResponse(critique.ImprovedResponse)
		}
		steps = append(steps, time.Since(critStart))
	}
	resp.Normalize()

	metrics := c.evaluator.Evaluate(evaluator.Input{
		Response:      resp,
		Prompt:        userPrompt,
		StartedAt:     started,
		StepDurations: steps,
		Usage:         usage,
		Consistency:   cr,
	})

	result := &InvocationResult{
		Role:        c.role,
		Response:    resp,
		Metrics:     metrics,
		Consistency: cr,
		Critique:    critique,
		Usage:       usage,
		Duration:    time.Since(started),
	}

	span.SetAttributes(
		attribute.Float64("persona.confidence", resp.Confidence),
		attribute.Float64("persona.success_rate", metrics.Accuracy.TaskSuccessRate),
		attribute.Int("persona.calls", usage.Calls),
	)

	ec := errorspkg.Context{RunID: runctx.RunID(ctx), Role: string(c.role), Action: runctx.Action(ctx)}
	if err := c.evaluator.Enforce(metrics, ec); err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	telemetry.End(span, nil)

	c.logger.Debug("persona invoked",
		"run_id", ec.RunID,
		"action", ec.Action,
		"calls", usage.Calls,
		"confidence", resp.Confidence,
		"consensus", cr.ConsensusScore,
		"critique_applied", critique != nil && critique.Applied,
	)
	return result, nil
}

// render fills a built-in template and invokes the persona with it.
func (c *core) render(ctx context.Context, name string, vars map[string]any) (*InvocationResult, error) {
	text, err := c.prompts.Render(name, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt: %w", c.role, err)
	}
	return c.Invoke(ctx, text)
}
