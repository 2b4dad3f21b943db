package workflow

import (
	"time"

	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

// runState is everything one Execute accumulates. It is created per run and
// never shared.
type runState struct {
	runID     string
	task      string
	startedAt time.Time
	ids       sequence
	stages    [3]*StageResult

	goals    string
	plan1    string
	plan2    string
	artifact string
	change   float64

	planFindings1 []Finding
	fixFindings1  []Finding
	planFindings2 []Finding
	fixFindings2  []Finding
	jointFindings []Finding

	alignment      bool
	implementation *reasoning.InvocationResponse

	findings      []Finding
	conflicts     []Conflict
	opportunities []Opportunity
	signOff       SignOff

	usage      reasoning.Usage
	totalCalls int
}

func newRunState(runID, task string, now time.Time) *runState {
	s := &runState{
		runID:     runID,
		task:      task,
		startedAt: now,
		ids:       make(sequence),
		signOff: SignOff{
			Stage1: map[persona.Role]Approval{},
			Stage2: map[persona.Role]Approval{},
			Stage3: map[persona.Role]Approval{},
		},
	}
	for i := range s.stages {
		s.stages[i] = newStage(i+1, stageNames[i])
	}
	return s
}

func (s *runState) stage(n int) *StageResult {
	return s.stages[n-1]
}

// addFindings extracts findings from text, assigns role-prefixed IDs and
// records them on the stage and the run.
func (s *runState) addFindings(stage int, role persona.Role, text string) []Finding {
	st := s.stage(stage)
	texts := ExtractFindingTexts(text)
	out := make([]Finding, 0, len(texts))
	for _, t := range texts {
		f := Finding{
			ID:          s.ids.next(idPrefix[role]),
			Role:        role,
			Description: t,
			Impact:      ClassifyImpact(t),
			Stage:       stage,
		}
		out = append(out, f)
		st.Findings = append(st.Findings, f)
		s.findings = append(s.findings, f)
	}
	return out
}

// resolve sets the resolution of the finding with id everywhere it is
// recorded.
func (s *runState) resolve(id, resolution string) {
	for i := range s.findings {
		if s.findings[i].ID == id {
			s.findings[i].Resolution = resolution
		}
	}
	for _, st := range s.stages {
		for i := range st.Findings {
			if st.Findings[i].ID == id {
				st.Findings[i].Resolution = resolution
			}
		}
	}
}

// resolutions lists "ID: resolution" for the conflicts of stage, or of all
// stages when stage is 0.
func (s *runState) resolutions(stage int) []string {
	var out []string
	for _, c := range s.conflicts {
		if c.Resolution == "" || (stage != 0 && c.Stage != stage) {
			continue
		}
		out = append(out, c.ID+": "+c.Resolution)
	}
	return out
}

func (s *runState) result(now time.Time) *Result {
	for _, r := range []persona.Role{persona.RoleCritic, persona.RolePlanner, persona.RoleFixer} {
		s.signOff.Stage1[r] = Approved
	}
	s.signOff.Stage2[persona.RolePlanner] = Approved
	s.signOff.Stage2[persona.RoleFixer] = Approved
	for _, r := range persona.Roles() {
		s.signOff.Stage3[r] = Approved
	}
	s.signOff.Approved = true

	stages := make([]StageResult, 0, len(s.stages))
	for _, st := range s.stages {
		stages = append(stages, *st)
	}

	return &Result{
		RunID:              s.runID,
		Task:               s.task,
		Stages:             stages,
		TotalCalls:         s.totalCalls,
		FinalArtifact:      s.artifact,
		Implementation:     s.implementation,
		ChangePercentage:   s.change,
		AlignmentTriggered: s.alignment,
		Findings:           nonNil(s.findings),
		Conflicts:          nonNil(s.conflicts),
		Opportunities:      nonNil(s.opportunities),
		SignOff:            s.signOff,
		Usage:              s.usage,
		StartedAt:          s.startedAt,
		Duration:           now.Sub(s.startedAt),
	}
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
