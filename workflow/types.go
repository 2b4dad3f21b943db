package workflow

import (
	"time"

	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

// Impact grades how much a finding matters.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Finding is a claim extracted from one persona's output.
type Finding struct {
	ID          string       `json:"id"`
	Role        persona.Role `json:"role"`
	Description string       `json:"description"`
	Impact      Impact       `json:"impact"`
	Stage       int          `json:"stage"`
	Resolution  string       `json:"resolution,omitempty"`
}

// ConflictType says whether a conflict can be merged mechanically.
type ConflictType string

const (
	ConflictSimple  ConflictType = "simple"
	ConflictComplex ConflictType = "complex"
)

// Resolver names who settled a conflict.
type Resolver string

const (
	ResolvedByAuto   Resolver = "auto"
	ResolvedByCritic Resolver = "critic"
)

// Conflict is a pair of similar findings from different roles.
type Conflict struct {
	ID         string       `json:"id"`
	FindingA   Finding      `json:"finding_a"`
	FindingB   Finding      `json:"finding_b"`
	Similarity float64      `json:"similarity"`
	Type       ConflictType `json:"type"`
	Resolution string       `json:"resolution,omitempty"`
	ResolvedBy Resolver     `json:"resolved_by,omitempty"`
	Stage      int          `json:"stage"`
}

// Opportunity is an adjacent improvement noted by the critic.
type Opportunity struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	OriginStage       int    `json:"origin_stage"`
	PersistedToMemory bool   `json:"persisted_to_memory"`
}

// Approval is a role's sign-off for a stage.
type Approval string

const (
	Approved Approval = "approved"
	Skipped  Approval = "skipped"
)

// SignOff records which roles approved each stage.
type SignOff struct {
	Stage1   map[persona.Role]Approval `json:"stage1"`
	Stage2   map[persona.Role]Approval `json:"stage2"`
	Stage3   map[persona.Role]Approval `json:"stage3"`
	Approved bool                      `json:"approved"`
}

// StageResult is what one stage produced.
type StageResult struct {
	Stage         int                                            `json:"stage"`
	Name          string                                         `json:"name"`
	CallCount     int                                            `json:"call_count"`
	Escalations   int                                            `json:"escalations"`
	Findings      []Finding                                      `json:"findings"`
	Conflicts     []Conflict                                     `json:"conflicts"`
	Opportunities []Opportunity                                  `json:"opportunities"`
	Outputs       map[persona.Role]*reasoning.InvocationResponse `json:"outputs"`
	Metrics       map[persona.Role]evaluator.QualityMetrics      `json:"metrics"`
}

func newStage(n int, name string) *StageResult {
	return &StageResult{
		Stage:         n,
		Name:          name,
		Findings:      []Finding{},
		Conflicts:     []Conflict{},
		Opportunities: []Opportunity{},
		Outputs:       make(map[persona.Role]*reasoning.InvocationResponse),
		Metrics:       make(map[persona.Role]evaluator.QualityMetrics),
	}
}

// Result is the outcome of one deliberation run.
type Result struct {
	RunID              string                        `json:"run_id"`
	Task               string                        `json:"task"`
	Stages             []StageResult                 `json:"stages"`
	TotalCalls         int                           `json:"total_calls"`
	FinalArtifact      string                        `json:"final_artifact"`
	Implementation     *reasoning.InvocationResponse `json:"implementation"`
	ChangePercentage   float64                       `json:"change_percentage"`
	AlignmentTriggered bool                          `json:"alignment_triggered"`
	Findings           []Finding                     `json:"findings"`
	Conflicts          []Conflict                    `json:"conflicts"`
	Opportunities      []Opportunity                 `json:"opportunities"`
	SignOff            SignOff                       `json:"sign_off"`
	Usage              reasoning.Usage               `json:"usage"`
	StartedAt          time.Time                     `json:"started_at"`
	Duration           time.Duration                 `json:"duration"`
}
