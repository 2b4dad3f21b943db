package prompt

import "sync"

// Names of the built-in templates.
const (
	OutputContract = "reasoning.output_contract"
	SelfCritique   = "reasoning.self_critique"

	PlannerDesign        = "planner.design"
	PlannerRevise        = "planner.revise"
	FixerValidate        = "fixer.validate"
	FixerDiagnose        = "fixer.diagnose"
	ImplementerImplement = "implementer.implement"
	CriticSetGoals       = "critic.set_goals"
	CriticEvaluate       = "critic.evaluate"
	CriticAdjudicate     = "critic.adjudicate"
	CriticAlignment      = "critic.alignment"

	JointReview  = "workflow.joint_review"
	MetaAnalysis = "orchestrator.meta_analysis"
)

var builtin = map[string]string{
	OutputContract: `{{.Prompt}}

## Response format
Think step by step, then reply with a single JSON object and nothing else:
{
  "reasoning": [{"step": 1, "thought": "...", "action": "...", "observation": "..."}],
  "recommendation": "your answer; put each distinct finding on its own line starting with 'Finding:'",
  "confidence": 0.0,
  "alternatives": ["..."],
  "warnings": ["..."],
  "code_output": "optional code",
  "validations": {"passed": ["..."], "failed": ["..."]}
}
confidence is a number between 0 and 1.`,

	SelfCritique: `Here is a response you produced earlier:

{{.Original}}

Review it critically. Look for factual errors, gaps in the reasoning, missing edge cases, unsafe code and unsupported claims.
Then produce a corrected version. Reply with JSON only:
{
  "critique": "what is wrong with the original",
  "improvements_made": ["..."],
  "improved_response": { same shape as the original response }
}`,

	PlannerDesign: `Task:
{{.Task}}
{{if .Goals}}
Goals and success metrics agreed with the critic:
{{.Goals}}
{{end}}
Propose a concrete plan for this task. Cover architecture, sequencing, risks and how success will be measured.
State each design decision as a separate line starting with "Finding:".`,

	PlannerRevise: `Task:
{{.Task}}

Your previous plan:
{{.Plan}}

Feedback from the fixer:
{{bullets .Feedback}}

Resolved disagreements:
{{bullets .Resolutions}}

Revise the plan to address the feedback and respect every resolution. Keep what still holds.
State each design decision as a separate line starting with "Finding:".`,

	FixerValidate: `Task:
{{.Task}}

Plan under review:
{{.Plan}}

Validate this plan. Identify bugs, failure modes, missing error handling and untestable parts.
Report each problem as a separate line starting with "Issue:" or "Finding:" and say how critical it is.`,

	FixerDiagnose: `Problem:
{{.Problem}}
{{if .Context}}
Context:
{{.Context}}
{{end}}
Diagnose the root cause, list the evidence for it and propose a fix.
Report each problem as a separate line starting with "Issue:".`,

	ImplementerImplement: `Task:
{{.Task}}

Approved plan:
{{.Plan}}

Implement the plan. Put the complete code in code_output and summarise what you built in the recommendation.`,

	CriticSetGoals: `Task:
{{.Task}}

Before any planning starts, define the goals for this task and how success will be measured.
List measurable success metrics and the constraints the plan must respect.
Note adjacent improvements worth doing later on lines starting with "Opportunity:".`,

	CriticEvaluate: `Task:
{{.Task}}

Output to evaluate:
{{.Output}}

Evaluate this output against the task. Score its quality, list strengths and weaknesses and say whether it should be approved.
Note adjacent improvements worth doing later on lines starting with "Opportunity:".`,

	CriticAdjudicate: `Task:
{{.Task}}

Two roles disagree.

{{.RoleA}} says:
{{.FindingA}}

{{.RoleB}} says:
{{.FindingB}}

Decide which position is correct for this task, or state the combined position that should be adopted.
Put the decision in the recommendation as one or two sentences.`,

	CriticAlignment: `Task:
{{.Task}}

The plan changed by {{printf "%.0f" .Change}}% during refinement.

Original plan:
{{.Original}}

Revised plan:
{{.Revised}}

Check that the revised plan still meets the goals of the task. Say whether it is aligned and flag any drift.
Note adjacent improvements worth doing later on lines starting with "Opportunity:".`,

	JointReview: `Task:
{{.Task}}
{{if .Goals}}
Goals:
{{truncate 2000 .Goals}}
{{end}}
Final plan:
{{.Artifact}}

Play two roles in one answer.
As the FIXER: check the final plan for remaining bugs and failure modes. Report each on its own line starting with "Finding:".
As the CRITIC: decide whether the plan is ready for implementation and note adjacent improvements on lines starting with "Opportunity:".`,

	MetaAnalysis: `Task:
{{.Task}}

Blueprint:
{{.Blueprint}}

Implementation:
{{.Implementation}}
{{if .Diagnosis}}
Diagnosis:
{{truncate 2000 .Diagnosis}}
{{end}}
Assess the whole pipeline: how well the implementation follows the blueprint, what is still missing and what should happen next.
Note adjacent improvements worth doing later on lines starting with "Opportunity:".`,
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns a shared manager holding the built-in templates.
// Callers that want to customise templates should use NewDefault.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewDefault()
	})
	return defaultManager
}

// NewDefault returns a fresh manager holding the built-in templates.
func NewDefault() *Manager {
	m := NewManager()
	for name, content := range builtin {
		if err := m.RegisterString(name, content); err != nil {
			panic("prompt: invalid built-in template " + name + ": " + err.Error())
		}
	}
	return m
}
