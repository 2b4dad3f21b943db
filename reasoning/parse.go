package reasoning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultConfidence is used when the model does not report a usable confidence.
const DefaultConfidence = 0.5

// decodeJSON tries to unmarshal the raw model output into T after stripping
// fences and any prose around the outermost object.
func decodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		fenced := trimmed[idx+3:]
		fenced = strings.TrimPrefix(fenced, "json")
		fenced = strings.TrimPrefix(fenced, "JSON")
		if end := strings.Index(fenced, "```"); end >= 0 {
			fenced = fenced[:end]
		}
		fenced = strings.TrimSpace(fenced)
		if json.Valid([]byte(fenced)) {
			return fenced
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

// wireResponse accepts the loose shapes models actually produce.
type wireResponse struct {
	Reasoning      json.RawMessage `json:"reasoning"`
	Recommendation string          `json:"recommendation"`
	Confidence     json.RawMessage `json:"confidence"`
	Alternatives   json.RawMessage `json:"alternatives"`
	Warnings       json.RawMessage `json:"warnings"`
	CodeOutput     string          `json:"code_output"`
	CodeOutputAlt  string          `json:"codeOutput"`
	Validations    *struct {
		Passed json.RawMessage `json:"passed"`
		Failed json.RawMessage `json:"failed"`
	} `json:"validations"`
}

// DecodeResponse parses model text into an InvocationResponse and reports an
// error when the text holds no usable structured answer.
func DecodeResponse(raw string) (*InvocationResponse, error) {
	w, err := decodeJSON[wireResponse](raw)
	if err != nil {
		return nil, err
	}

	confidence := parseConfidence(w.Confidence)
	resp := &InvocationResponse{
		Reasoning:      parseSteps(w.Reasoning),
		Recommendation: strings.TrimSpace(w.Recommendation),
		Confidence:     clamp01(confidence),
		RawConfidence:  confidence,
		Alternatives:   stringList(w.Alternatives),
		Warnings:       stringList(w.Warnings),
		CodeOutput:     w.CodeOutput,
		Validations:    Validations{Passed: []string{}, Failed: []string{}},
	}
	if resp.CodeOutput == "" {
		resp.CodeOutput = w.CodeOutputAlt
	}
	if w.Validations != nil {
		resp.Validations.Passed = stringList(w.Validations.Passed)
		resp.Validations.Failed = stringList(w.Validations.Failed)
	}
	if resp.Recommendation == "" && len(resp.Reasoning) > 0 {
		resp.Recommendation = resp.Reasoning[len(resp.Reasoning)-1].Thought
	}
	if resp.Recommendation == "" {
		return nil, fmt.Errorf("decode JSON: response has no recommendation")
	}
	return resp, nil
}

// ParseResponse never fails: text that does not decode becomes a
// well-formed response whose recommendation is the trimmed text.
func ParseResponse(raw string) InvocationResponse {
	if resp, err := DecodeResponse(raw); err == nil {
		return *resp
	}
	return FallbackResponse(raw)
}

// FallbackResponse builds the default response for unstructured text.
func FallbackResponse(raw string) InvocationResponse {
	return InvocationResponse{
		Reasoning:      []Step{},
		Recommendation: strings.TrimSpace(raw),
		Confidence:     DefaultConfidence,
		RawConfidence:  DefaultConfidence,
		Alternatives:   []string{},
		Warnings:       []string{},
		Validations:    Validations{Passed: []string{}, Failed: []string{}},
	}
}

// Normalize fills any nil slices so the response serialises with stable fields.
func (r *InvocationResponse) Normalize() {
	if r.Reasoning == nil {
		r.Reasoning = []Step{}
	}
	if r.Alternatives == nil {
		r.Alternatives = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	if r.Validations.Passed == nil {
		r.Validations.Passed = []string{}
	}
	if r.Validations.Failed == nil {
		r.Validations.Failed = []string{}
	}
	r.Confidence = clamp01(r.Confidence)
}

// JSON returns the response as JSON text.
func (r InvocationResponse) JSON() string {
	r.Normalize()
	data, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parsePath turns one attempt's text into a Path.
func parsePath(raw string) Path {
	resp := ParseResponse(raw)
	steps := resp.Reasoning
	if len(steps) == 0 {
		steps = []Step{{Step: 1, Thought: resp.Recommendation}}
	}
	return Path{
		Steps:      steps,
		Conclusion: resp.Recommendation,
		Confidence: resp.Confidence,
		Raw:        raw,
	}
}

func parseSteps(raw json.RawMessage) []Step {
	steps := []Step{}
	if len(raw) == 0 {
		return steps
	}

	var structured []Step
	if err := json.Unmarshal(raw, &structured); err == nil {
		for i, s := range structured {
			if strings.TrimSpace(s.Thought) == "" {
				continue
			}
			if s.Step <= 0 {
				s.Step = i + 1
			}
			steps = append(steps, s)
		}
		return steps
	}

	for i, thought := range stringList(raw) {
		steps = append(steps, Step{Step: i + 1, Thought: thought})
	}
	return steps
}

// parseConfidence returns the confidence as reported, unclamped. Only a
// string ending in "%" is read as a percentage.
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultConfidence
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return DefaultConfidence
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil || f != f {
		return DefaultConfidence
	}
	if percent {
		f /= 100
	}
	return f
}

// stringList accepts a list of strings, a list of arbitrary values or a
// single string. The result is never nil.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			var s string
			switch v := item.(type) {
			case string:
				s = v
			case nil:
				continue
			default:
				data, _ := json.Marshal(v)
				s = string(data)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		out = append(out, strings.TrimSpace(single))
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f != f: // NaN
		return DefaultConfidence
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
