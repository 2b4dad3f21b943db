package reasoning

import (
	"fmt"
	"strings"
)

// Mode selects how many independent reasoning attempts an invocation makes.
type Mode string

const (
	// ModeNone makes a single attempt with no voting.
	ModeNone Mode = "none"
	// ModeFast makes a few attempts for a cheap approximate consensus.
	ModeFast Mode = "fast"
	// ModeRobust makes more attempts and keeps a full disagreement analysis.
	ModeRobust Mode = "robust"
)

// ParseMode converts a string into a Mode. The empty string is ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeFast:
		return ModeFast, nil
	case ModeRobust:
		return ModeRobust, nil
	default:
		return "", fmt.Errorf("unknown reasoning mode %q (want none, fast or robust)", s)
	}
}

// Step is one unit of a chain-of-thought trace.
type Step struct {
	Step        int    `json:"step"`
	Thought     string `json:"thought"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Path is one independent attempt at a task.
type Path struct {
	Steps        []Step  `json:"steps"`
	Conclusion   string  `json:"conclusion"`
	Confidence   float64 `json:"confidence"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`

	// Raw is the attempt's unparsed model text.
	Raw string `json:"-"`
}

// ConsistencyResult is the outcome of a self-consistency run.
// SelectedPath is always AllPaths[SelectedIndex].
type ConsistencyResult struct {
	Mode           Mode        `json:"mode"`
	SelectedPath   Path        `json:"selected_path"`
	SelectedIndex  int         `json:"selected_index"`
	AllPaths       []Path      `json:"all_paths"`
	ConsensusScore float64     `json:"consensus_score"`
	Disagreements  []string    `json:"disagreements"`
	Similarities   [][]float64 `json:"similarities,omitempty"`
	Usage          Usage       `json:"usage"`
}

// Usage accumulates provider calls and tokens.
type Usage struct {
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns u plus o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Calls:        u.Calls + o.Calls,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Tokens returns input plus output tokens.
func (u Usage) Tokens() int {
	return u.InputTokens + u.OutputTokens
}

// Validations lists the checks the model reports as passed or failed.
// Both slices are always non-nil.
type Validations struct {
	Passed []string `json:"passed"`
	Failed []string `json:"failed"`
}

// InvocationResponse is the structured reply of one persona invocation.
type InvocationResponse struct {
	Reasoning      []Step      `json:"reasoning"`
	Recommendation string      `json:"recommendation"`
	Confidence     float64     `json:"confidence"`
	// RawConfidence is the value the model reported before clamping.
	RawConfidence  float64     `json:"-"`
	Alternatives   []string    `json:"alternatives"`
	Warnings       []string    `json:"warnings"`
	CodeOutput     string      `json:"code_output,omitempty"`
	Validations    Validations `json:"validations"`
}

// CritiqueResult is the outcome of a self-critique pass. When Applied is
// false ImprovedResponse is the original response, unchanged.
type CritiqueResult struct {
	Critique         string   `json:"critique"`
	ImprovedResponse string   `json:"improved_response"`
	ImprovementsMade []string `json:"improvements_made"`
	Applied          bool     `json:"applied"`
	Usage            Usage    `json:"usage"`
}
