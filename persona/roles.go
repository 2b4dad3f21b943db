package persona

import (
	"context"
	"fmt"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/prompt"
)

var (
	_ Persona = (*Planner)(nil)
	_ Persona = (*Fixer)(nil)
	_ Persona = (*Implementer)(nil)
	_ Persona = (*Critic)(nil)
)

// Planner designs and revises plans.
type Planner struct{ core }

// NewPlanner creates a planner persona
func NewPlanner(deps Deps, opts ...Option) *Planner {
	return &Planner{newCore(RolePlanner, plannerInstruction, deps, opts...)}
}

// Design proposes a plan for task, honouring goals when given.
func (p *Planner) Design(ctx context.Context, task, goals string) (*InvocationResult, error) {
	return p.render(ctx, prompt.PlannerDesign, map[string]any{"Task": task, "Goals": goals})
}

// Revise reworks plan using reviewer feedback and resolved conflicts.
func (p *Planner) Revise(ctx context.Context, task, plan string, feedback, resolutions []string) (*InvocationResult, error) {
	return p.render(ctx, prompt.PlannerRevise, map[string]any{
		"Task":        task,
		"Plan":        plan,
		"Feedback":    feedback,
		"Resolutions": resolutions,
	})
}

// Fixer validates plans and diagnoses failures.
type Fixer struct{ core }

// NewFixer creates a fixer persona
func NewFixer(deps Deps, opts ...Option) *Fixer {
	return &Fixer{newCore(RoleFixer, fixerInstruction, deps, opts...)}
}

// Validate reviews plan for defects.
func (f *Fixer) Validate(ctx context.Context, task, plan string) (*InvocationResult, error) {
	return f.render(ctx, prompt.FixerValidate, map[string]any{"Task": task, "Plan": plan})
}

// Diagnose finds the root cause of problem.
func (f *Fixer) Diagnose(ctx context.Context, problem, background string) (*InvocationResult, error) {
	return f.render(ctx, prompt.FixerDiagnose, map[string]any{"Problem": problem, "Context": background})
}

// Implementer turns plans into code.
type Implementer struct{ core }

// NewImplementer creates an implementer persona
func NewImplementer(deps Deps, opts ...Option) *Implementer {
	return &Implementer{newCore(RoleImplementer, implementerInstruction, deps, opts...)}
}

// Implement builds plan.
func (i *Implementer) Implement(ctx context.Context, task, plan string) (*InvocationResult, error) {
	return i.render(ctx, prompt.ImplementerImplement, map[string]any{"Task": task, "Plan": plan})
}

// Critic sets goals, judges outputs and breaks ties.
type Critic struct{ core }

// NewCritic creates a critic persona
func NewCritic(deps Deps, opts ...Option) *Critic {
	return &Critic{newCore(RoleCritic, criticInstruction, deps, opts...)}
}

// SetGoals defines goals and success metrics for task.
func (c *Critic) SetGoals(ctx context.Context, task string) (*InvocationResult, error) {
	return c.render(ctx, prompt.CriticSetGoals, map[string]any{"Task": task})
}

// Evaluate judges output against task.
func (c *Critic) Evaluate(ctx context.Context, task, output string) (*InvocationResult, error) {
	return c.render(ctx, prompt.CriticEvaluate, map[string]any{"Task": task, "Output": output})
}

// Adjudicate decides between two conflicting positions.
func (c *Critic) Adjudicate(ctx context.Context, task string, roleA Role, findingA string, roleB Role, findingB string) (*InvocationResult, error) {
	return c.render(ctx, prompt.CriticAdjudicate, map[string]any{
		"Task":     task,
		"RoleA":    string(roleA),
		"FindingA": findingA,
		"RoleB":    string(roleB),
		"FindingB": findingB,
	})
}

// CheckAlignment checks a revised plan against the task after a large
// change. change is a ratio, 0.25 for 25%.
func (c *Critic) CheckAlignment(ctx context.Context, task, original, revised string, change float64) (*InvocationResult, error) {
	return c.render(ctx, prompt.CriticAlignment, map[string]any{
		"Task":     task,
		"Original": original,
		"Revised":  revised,
		"Change":   change * 100,
	})
}

// constructors is the role lookup table.
var constructors = map[Role]func(Deps, ...Option) Persona{
	RolePlanner:     func(d Deps, o ...Option) Persona { return NewPlanner(d, o...) },
	RoleFixer:       func(d Deps, o ...Option) Persona { return NewFixer(d, o...) },
	RoleImplementer: func(d Deps, o ...Option) Persona { return NewImplementer(d, o...) },
	RoleCritic:      func(d Deps, o ...Option) Persona { return NewCritic(d, o...) },
}

// New builds the persona for role.
func New(role Role, deps Deps, opts ...Option) (Persona, error) {
	ctor, ok := constructors[role]
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", errorspkg.ErrInvalidInput, role)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("%w: persona %s needs a reasoning engine", errorspkg.ErrInvalidInput, role)
	}
	return ctor(deps, opts...), nil
}

// Team holds one persona per role.
type Team struct {
	Planner     *Planner
	Fixer       *Fixer
	Implementer *Implementer
	Critic      *Critic
}

// NewTeam builds all four personas over the same collaborators.
func NewTeam(deps Deps, opts ...Option) (*Team, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("%w: team needs a reasoning engine", errorspkg.ErrInvalidInput)
	}
	return &Team{
		Planner:     NewPlanner(deps, opts...),
		Fixer:       NewFixer(deps, opts...),
		Implementer: NewImplementer(deps, opts...),
		Critic:      NewCritic(deps, opts...),
	}, nil
}

// Get returns the team member for role.
func (t *Team) Get(role Role) (Persona, error) {
	switch role {
	case RolePlanner:
		return t.Planner, nil
	case RoleFixer:
		return t.Fixer, nil
	case RoleImplementer:
		return t.Implementer, nil
	case RoleCritic:
		return t.Critic, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", errorspkg.ErrInvalidInput, role)
}
