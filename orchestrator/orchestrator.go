// Package orchestrator runs personas outside the full deliberation: a single
// role, a planner/critic quick review, or the four-role pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/reasoning"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

// Orchestrator coordinates a persona team.
type Orchestrator struct {
	team         *persona.Team
	prompts      *prompt.Manager
	metaAnalysis bool
	logger       *slog.Logger
}

// Option is a function that configures an Orchestrator
type Option func(*Orchestrator)

// WithMetaAnalysis enables or disables the closing critic pass of RunPipeline
func WithMetaAnalysis(enable bool) Option {
	return func(o *Orchestrator) {
		o.metaAnalysis = enable
	}
}

// WithPrompts sets the template manager
func WithPrompts(m *prompt.Manager) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.prompts = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator over team.
func New(team *persona.Team, opts ...Option) (*Orchestrator, error) {
	if team == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a persona team", errorspkg.ErrInvalidInput)
	}
	o := &Orchestrator{
		team:         team,
		prompts:      prompt.Default(),
		metaAnalysis: true,
		logger:       logging.WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// InvokeAgent sends a free-form prompt to one role.
func (o *Orchestrator) InvokeAgent(ctx context.Context, role persona.Role, userPrompt string) (*persona.InvocationResult, error) {
	p, err := o.team.Get(role)
	if err != nil {
		return nil, err
	}
	ctx = runctx.WithAction(ctx, "invoke")
	return p.Invoke(ctx, userPrompt)
}

// Review is the outcome of a quick review.
type Review struct {
	Task       string                    `json:"task"`
	Plan       *persona.InvocationResult `json:"plan"`
	Evaluation *persona.InvocationResult `json:"evaluation"`
	Usage      reasoning.Usage           `json:"usage"`
	Duration   time.Duration             `json:"duration"`
}

// QuickReview has the planner design and the critic evaluate the design.
func (o *Orchestrator) QuickReview(ctx context.Context, task string) (*Review, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("%w: empty task", errorspkg.ErrInvalidInput)
	}
	started := time.Now()

	plan, err := o.team.Planner.Design(runctx.WithAction(ctx, "review.plan"), task, "")
	if err != nil {
		return nil, fmt.Errorf("quick review plan: %w", err)
	}
	eval, err := o.team.Critic.Evaluate(runctx.WithAction(ctx, "review.evaluate"), task, plan.Response.Recommendation)
	if err != nil {
		return nil, fmt.Errorf("quick review evaluate: %w", err)
	}

	r := &Review{
		Task:       task,
		Plan:       plan,
		Evaluation: eval,
		Usage:      plan.Usage.Add(eval.Usage),
		Duration:   time.Since(started),
	}
	o.logger.Info("quick review complete", "calls", r.Usage.Calls, "duration", r.Duration)
	return r, nil
}

// PipelineResult is the outcome of RunPipeline. Diagnosis is set only when the
// implementation reported failed validations, MetaAnalysis only when enabled.
type PipelineResult struct {
	Task           string                    `json:"task"`
	Blueprint      *persona.InvocationResult `json:"blueprint"`
	Implementation *persona.InvocationResult `json:"implementation"`
	Diagnosis      *persona.InvocationResult `json:"diagnosis,omitempty"`
	MetaAnalysis   *persona.InvocationResult `json:"meta_analysis,omitempty"`
	Usage          reasoning.Usage           `json:"usage"`
	Duration       time.Duration             `json:"duration"`
}

// RunPipeline runs planner, implementer, fixer (only on failed validations)
// and critic in sequence.
func (o *Orchestrator) RunPipeline(ctx context.Context, task string) (*PipelineResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("%w: empty task", errorspkg.ErrInvalidInput)
	}
	started := time.Now()
	res := &PipelineResult{Task: task}

	blueprint, err := o.team.Planner.Design(runctx.WithAction(ctx, "pipeline.blueprint"), task, "")
	if err != nil {
		return nil, fmt.Errorf("pipeline blueprint: %w", err)
	}
	res.Blueprint = blueprint
	res.Usage = blueprint.Usage

	impl, err := o.team.Implementer.Implement(runctx.WithAction(ctx, "pipeline.implement"), task, blueprint.Response.Recommendation)
	if err != nil {
		return nil, fmt.Errorf("pipeline implement: %w", err)
	}
	res.Implementation = impl
	res.Usage = res.Usage.Add(impl.Usage)

	if failed := impl.Response.Validations.Failed; len(failed) > 0 {
		problem := prompt.NewBuilder().
			AddFormat("The implementation failed %d validation(s):\n", len(failed)).
			Add("- " + strings.Join(failed, "\n- ")).
			Build()
		diag, err := o.team.Fixer.Diagnose(runctx.WithAction(ctx, "pipeline.diagnose"), problem, implementationText(impl))
		if err != nil {
			return nil, fmt.Errorf("pipeline diagnose: %w", err)
		}
		res.Diagnosis = diag
		res.Usage = res.Usage.Add(diag.Usage)
	}

	if o.metaAnalysis {
		vars := map[string]any{
			"Task":           task,
			"Blueprint":      blueprint.Response.Recommendation,
			"Implementation": implementationText(impl),
			"Diagnosis":      "",
		}
		if res.Diagnosis != nil {
			vars["Diagnosis"] = res.Diagnosis.Response.Recommendation
		}
		text, err := o.prompts.Render(prompt.MetaAnalysis, vars)
		if err != nil {
			return nil, fmt.Errorf("pipeline meta-analysis prompt: %w", err)
		}
		meta, err := o.team.Critic.Invoke(runctx.WithAction(ctx, "pipeline.meta_analysis"), text)
		if err != nil {
			return nil, fmt.Errorf("pipeline meta-analysis: %w", err)
		}
		res.MetaAnalysis = meta
		res.Usage = res.Usage.Add(meta.Usage)
	}

	res.Duration = time.Since(started)
	o.logger.Info("pipeline complete",
		"calls", res.Usage.Calls,
		"diagnosed", res.Diagnosis != nil,
		"meta_analysis", res.MetaAnalysis != nil,
		"duration", res.Duration,
	)
	return res, nil
}

func implementationText(r *persona.InvocationResult) string {
	return prompt.NewBuilder().
		Add(r.Response.Recommendation + "\n\n").
		AddSection("Code", strings.TrimSpace(r.Response.CodeOutput)).
		Build()
}
