// Package workflow runs the three-stage deliberation: foundation,
// refinement and final. Stages are named states of a graph; all
// bookkeeping (IDs, findings, conflicts, call counts) lives in a state value
// created fresh for every run.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/graph"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/runctx"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultChangeThreshold     = 0.15
	DefaultSimilarityThreshold = 0.5
)

// State names.
const (
	StateGoals            = "stage1.goals"
	StatePlan             = "stage1.plan"
	StateValidate         = "stage1.validate"
	StateCrossCheck1      = "stage1.crosscheck"
	StateRevise           = "stage2.revise"
	StateRevalidate       = "stage2.revalidate"
	StateCrossCheck2      = "stage2.crosscheck"
	StateAlignmentGate    = "stage2.alignment_gate"
	StateAlignment        = "stage2.alignment"
	StateAlignmentSkipped = "stage2.alignment_skipped"
	StateFinalize         = "stage3.finalize"
	StateJointReview      = "stage3.joint_review"
	StateCrossCheck3      = "stage3.crosscheck"
	StateImplement        = "stage3.implement"
	StateEnd              = "end"
)

var stageNames = [3]string{"foundation", "refinement", "final"}

// MemoryRecorder persists critic opportunities.
type MemoryRecorder interface {
	StoreMemory(ctx context.Context, role, task, content string, score float64) error
}

// Workflow runs deliberations with one persona team. Each Execute builds its
// own run state, so a Workflow may be reused.
type Workflow struct {
	team                *persona.Team
	prompts             *prompt.Manager
	recorder            MemoryRecorder
	changeThreshold     float64
	similarityThreshold float64
	now                 func() time.Time
	logger              *slog.Logger
	graph               *graph.Graph[*runState]
}

// Option is a function that configures a Workflow
type Option func(*Workflow)

// WithChangeThreshold sets the change ratio above which the critic checks alignment
func WithChangeThreshold(t float64) Option {
	return func(w *Workflow) {
		if t >= 0 {
			w.changeThreshold = t
		}
	}
}

// WithSimilarityThreshold sets the overlap at which two findings conflict
func WithSimilarityThreshold(t float64) Option {
	return func(w *Workflow) {
		if t > 0 && t <= 1 {
			w.similarityThreshold = t
		}
	}
}

// WithMemory sets where critic opportunities are persisted
func WithMemory(r MemoryRecorder) Option {
	return func(w *Workflow) {
		w.recorder = r
	}
}

// WithPrompts sets the template manager
func WithPrompts(m *prompt.Manager) Option {
	return func(w *Workflow) {
		if m != nil {
			w.prompts = m
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a workflow over team.
func New(team *persona.Team, opts ...Option) (*Workflow, error) {
	if team == nil {
		return nil, fmt.Errorf("%w: workflow needs a persona team", errorspkg.ErrInvalidInput)
	}
	w := &Workflow{
		team:                team,
		prompts:             prompt.Default(),
		changeThreshold:     DefaultChangeThreshold,
		similarityThreshold: DefaultSimilarityThreshold,
		now:                 time.Now,
		logger:              logging.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}

	g, err := w.buildGraph()
	if err != nil {
		return nil, fmt.Errorf("workflow graph: %w", err)
	}
	w.graph = g
	return w, nil
}

func (w *Workflow) buildGraph() (*graph.Graph[*runState], error) {
	return graph.NewBuilder[*runState]().
		AddNode(StateGoals, graph.NodeTypeStart, w.setGoals).
		AddNode(StatePlan, graph.NodeTypeCustom, w.plan).
		AddNode(StateValidate, graph.NodeTypeCustom, w.validate).
		AddNode(StateCrossCheck1, graph.NodeTypeCustom, w.crossCheckStage1).
		AddNode(StateRevise, graph.NodeTypeCustom, w.revise).
		AddNode(StateRevalidate, graph.NodeTypeCustom, w.revalidate).
		AddNode(StateCrossCheck2, graph.NodeTypeCustom, w.crossCheckStage2).
		AddConditionNode(StateAlignmentGate, w.alignmentGate, map[string]string{
			"check": StateAlignment,
			"skip":  StateAlignmentSkipped,
		}).
		AddNode(StateAlignment, graph.NodeTypeCustom, w.alignment).
		AddNode(StateAlignmentSkipped, graph.NodeTypeCustom, w.skipAlignment).
		AddNode(StateFinalize, graph.NodeTypeCustom, w.finalize).
		AddNode(StateJointReview, graph.NodeTypeCustom, w.jointReview).
		AddNode(StateCrossCheck3, graph.NodeTypeCustom, w.crossCheckStage3).
		AddNode(StateImplement, graph.NodeTypeCustom, w.implement).
		AddNode(StateEnd, graph.NodeTypeEnd, nil).
		Chain(StateGoals, StatePlan, StateValidate, StateCrossCheck1,
			StateRevise, StateRevalidate, StateCrossCheck2, StateAlignmentGate).
		AddEdge(StateAlignment, StateFinalize).
		AddEdge(StateAlignmentSkipped, StateFinalize).
		Chain(StateFinalize, StateJointReview, StateCrossCheck3, StateImplement, StateEnd).
		SetMaxVisits(1).
		Build()
}

// Execute runs one deliberation over task. Any persona failure aborts the
// run; the error names the state that failed.
func (w *Workflow) Execute(ctx context.Context, task string) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("%w: empty task", errorspkg.ErrInvalidInput)
	}

	s := newRunState(uuid.NewString(), task, w.now())
	ctx = runctx.WithRunID(ctx, s.runID)
	ctx, span := telemetry.Start(ctx, "workflow.execute", attribute.String("run.id", s.runID))

	w.logger.Info("deliberation started", "run_id", s.runID)
	if _, err := w.graph.Execute(ctx, s); err != nil {
		telemetry.End(span, err)
		w.logger.Error("deliberation failed", "run_id", s.runID, "calls", s.totalCalls, "error", err)
		return nil, err
	}

	res := s.result(w.now())
	span.SetAttributes(
		attribute.Int("workflow.total_calls", res.TotalCalls),
		attribute.Float64("workflow.change_percentage", res.ChangePercentage),
		attribute.Bool("workflow.alignment_triggered", res.AlignmentTriggered),
	)
	telemetry.End(span, nil)

	w.logger.Info("deliberation complete",
		"run_id", res.RunID,
		"calls", res.TotalCalls,
		"findings", len(res.Findings),
		"conflicts", len(res.Conflicts),
		"opportunities", len(res.Opportunities),
		"change", res.ChangePercentage,
		"duration", res.Duration,
	)
	return res, nil
}

// invoke makes one persona call charged to stage. The output is recorded
// under role unless role is empty.
func (w *Workflow) invoke(ctx context.Context, s *runState, stage int, action string, role persona.Role,
	call func(context.Context) (*persona.InvocationResult, error)) (*persona.InvocationResult, error) {
	res, err := call(runctx.WithAction(ctx, action))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	st := s.stage(stage)
	st.CallCount++
	s.totalCalls++
	s.usage = s.usage.Add(res.Usage)

	if role != "" {
		resp := res.Response
		st.Outputs[role] = &resp
		st.Metrics[role] = res.Metrics
	}

	w.logger.Debug("persona call", "run_id", s.runID, "stage", stage, "action", action, "calls", s.totalCalls)
	return res, nil
}

// Stage 1.

func (w *Workflow) setGoals(ctx context.Context, s *runState) (*runState, error) {
	res, err := w.invoke(ctx, s, 1, StateGoals, persona.RoleCritic, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Critic.SetGoals(ctx, s.task)
	})
	if err != nil {
		return s, err
	}
	s.goals = res.Response.Recommendation
	s.addFindings(1, persona.RoleCritic, res.Response.Recommendation)
	w.captureOpportunities(ctx, s, 1, res)
	return s, nil
}

func (w *Workflow) plan(ctx context.Context, s *runState) (*runState, error) {
	res, err := w.invoke(ctx, s, 1, StatePlan, persona.RolePlanner, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Planner.Design(ctx, s.task, s.goals)
	})
	if err != nil {
		return s, err
	}
	s.plan1 = res.Response.Recommendation
	s.planFindings1 = s.addFindings(1, persona.RolePlanner, res.Response.Recommendation)
	return s, nil
}

func (w *Workflow) validate(ctx context.Context, s *runState) (*runState, error) {
	res, err := w.invoke(ctx, s, 1, StateValidate, persona.RoleFixer, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Fixer.Validate(ctx, s.task, s.plan1)
	})
	if err != nil {
		return s, err
	}
	s.fixFindings1 = s.addFindings(1, persona.RoleFixer, res.Response.Recommendation)
	return s, nil
}

func (w *Workflow) crossCheckStage1(ctx context.Context, s *runState) (*runState, error) {
	return s, w.crossCheck(ctx, s, 1, StateCrossCheck1, s.planFindings1, s.fixFindings1)
}

// Stage 2.

func (w *Workflow) revise(ctx context.Context, s *runState) (*runState, error) {
	feedback := descriptions(s.fixFindings1)
	res, err := w.invoke(ctx, s, 2, StateRevise, persona.RolePlanner, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Planner.Revise(ctx, s.task, s.plan1, feedback, s.resolutions(1))
	})
	if err != nil {
		return s, err
	}
	s.plan2 = res.Response.Recommendation
	s.planFindings2 = s.addFindings(2, persona.RolePlanner, res.Response.Recommendation)
	return s, nil
}

func (w *Workflow) revalidate(ctx context.Context, s *runState) (*runState, error) {
	res, err := w.invoke(ctx, s, 2, StateRevalidate, persona.RoleFixer, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Fixer.Validate(ctx, s.task, s.plan2)
	})
	if err != nil {
		return s, err
	}
	s.fixFindings2 = s.addFindings(2, persona.RoleFixer, res.Response.Recommendation)
	return s, nil
}

func (w *Workflow) crossCheckStage2(ctx context.Context, s *runState) (*runState, error) {
	return s, w.crossCheck(ctx, s, 2, StateCrossCheck2, s.planFindings2, s.fixFindings2)
}

func (w *Workflow) alignmentGate(ctx context.Context, s *runState) (string, error) {
	s.change = ChangePercentage(s.plan1, s.plan2)
	w.logger.Debug("plan change measured", "run_id", s.runID, "change", s.change, "threshold", w.changeThreshold)
	if s.change > w.changeThreshold {
		return "check", nil
	}
	return "skip", nil
}

func (w *Workflow) alignment(ctx context.Context, s *runState) (*runState, error) {
	res, err := w.invoke(ctx, s, 2, StateAlignment, persona.RoleCritic, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Critic.CheckAlignment(ctx, s.task, s.plan1, s.plan2, s.change)
	})
	if err != nil {
		return s, err
	}
	s.alignment = true
	s.signOff.Stage2[persona.RoleCritic] = Approved
	s.addFindings(2, persona.RoleCritic, res.Response.Recommendation)
	w.captureOpportunities(ctx, s, 2, res)
	return s, nil
}

func (w *Workflow) skipAlignment(ctx context.Context, s *runState) (*runState, error) {
	s.signOff.Stage2[persona.RoleCritic] = Skipped
	return s, nil
}

// Stage 3.

// finalize assembles the final artifact from the revised plan and every
// resolved conflict. It makes no model call.
func (w *Workflow) finalize(ctx context.Context, s *runState) (*runState, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.plan2))
	if res := s.resolutions(0); len(res) > 0 {
		b.WriteString("\n\nResolved conflicts:\n- ")
		b.WriteString(strings.Join(res, "\n- "))
	}
	s.artifact = b.String()
	return s, nil
}

// jointReview is the one combined fixer and critic call of the final stage.
// It goes through the critic persona. Its findings count as fixer findings
// and its opportunity lines as critic opportunities.
func (w *Workflow) jointReview(ctx context.Context, s *runState) (*runState, error) {
	text, err := w.prompts.Render(prompt.JointReview, map[string]any{
		"Task":     s.task,
		"Goals":    s.goals,
		"Artifact": s.artifact,
	})
	if err != nil {
		return s, fmt.Errorf("%s: %w", StateJointReview, err)
	}
	res, err := w.invoke(ctx, s, 3, StateJointReview, persona.RoleCritic, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Critic.Invoke(ctx, text)
	})
	if err != nil {
		return s, err
	}
	st := s.stage(3)
	st.Outputs[persona.RoleFixer] = st.Outputs[persona.RoleCritic]
	st.Metrics[persona.RoleFixer] = st.Metrics[persona.RoleCritic]

	s.jointFindings = s.addFindings(3, persona.RoleFixer, res.Response.Recommendation)
	w.captureOpportunities(ctx, s, 3, res)
	return s, nil
}

func (w *Workflow) crossCheckStage3(ctx context.Context, s *runState) (*runState, error) {
	return s, w.crossCheck(ctx, s, 3, StateCrossCheck3, s.planFindings2, s.jointFindings)
}

func (w *Workflow) implement(ctx context.Context, s *runState) (*runState, error) {
	plan := s.artifact
	if late := s.resolutions(3); len(late) > 0 {
		plan += "\n\nFinal review decisions:\n- " + strings.Join(late, "\n- ")
	}
	res, err := w.invoke(ctx, s, 3, StateImplement, persona.RoleImplementer, func(ctx context.Context) (*persona.InvocationResult, error) {
		return w.team.Implementer.Implement(ctx, s.task, plan)
	})
	if err != nil {
		return s, err
	}
	resp := res.Response
	s.implementation = &resp
	s.addFindings(3, persona.RoleImplementer, res.Response.Recommendation)
	return s, nil
}

// crossCheck detects conflicts between two finding sets, auto-merges the
// simple ones and escalates the complex ones to the critic. Escalations are
// charged to stage.
func (w *Workflow) crossCheck(ctx context.Context, s *runState, stage int, action string, a, b []Finding) error {
	st := s.stage(stage)
	for _, c := range DetectConflicts(a, b, w.similarityThreshold) {
		c.ID = s.ids.next("C")
		c.Stage = stage

		switch c.Type {
		case ConflictSimple:
			c.Resolution = MergeFindings(c.FindingA.Description, c.FindingB.Description)
			c.ResolvedBy = ResolvedByAuto
		case ConflictComplex:
			fa, fb := c.FindingA, c.FindingB
			res, err := w.invoke(ctx, s, stage, action+".escalate", "", func(ctx context.Context) (*persona.InvocationResult, error) {
				return w.team.Critic.Adjudicate(ctx, s.task, fa.Role, fa.Description, fb.Role, fb.Description)
			})
			if err != nil {
				return err
			}
			st.Escalations++
			c.Resolution = strings.TrimSpace(res.Response.Recommendation)
			c.ResolvedBy = ResolvedByCritic
			w.captureOpportunities(ctx, s, stage, res)
		}

		s.resolve(c.FindingA.ID, c.Resolution)
		s.resolve(c.FindingB.ID, c.Resolution)
		c.FindingA.Resolution = c.Resolution
		c.FindingB.Resolution = c.Resolution

		st.Conflicts = append(st.Conflicts, c)
		s.conflicts = append(s.conflicts, c)
		w.logger.Info("conflict resolved",
			"run_id", s.runID, "stage", stage, "conflict", c.ID,
			"type", c.Type, "similarity", c.Similarity, "resolved_by", c.ResolvedBy)
	}
	return nil
}

// captureOpportunities records the opportunity lines of a critic output and
// hands each to the memory recorder. A failed write is logged and the run
// goes on.
func (w *Workflow) captureOpportunities(ctx context.Context, s *runState, stage int, res *persona.InvocationResult) {
	st := s.stage(stage)
	for _, text := range ExtractOpportunityTexts(res.Response.Recommendation) {
		o := Opportunity{ID: s.ids.next("ADJ"), Description: text, OriginStage: stage}
		if w.recorder != nil {
			err := w.recorder.StoreMemory(ctx, string(persona.RoleCritic), s.task, text, res.Metrics.Score())
			if err != nil {
				w.logger.Warn("opportunity not persisted", "run_id", s.runID, "opportunity", o.ID, "error", err)
			} else {
				o.PersistedToMemory = true
			}
		}
		st.Opportunities = append(st.Opportunities, o)
		s.opportunities = append(s.opportunities, o)
	}
}

func descriptions(fs []Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Description)
	}
	return out
}
