package reasoning

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/provider"
)

type wireCritique struct {
	Critique         string          `json:"critique"`
	ImprovementsMade json.RawMessage `json:"improvements_made"`
	ImprovedResponse json.RawMessage `json:"improved_response"`
}

// ApplySelfCritique asks the model to find flaws in its own earlier response
// and produce a revised one. It makes one provider call and never fails: any
// problem yields the original response with Applied false.
func (e *Engine) ApplySelfCritique(ctx context.Context, originalJSON, systemPrompt string) *CritiqueResult {
	fallback := &CritiqueResult{
		ImprovedResponse: originalJSON,
		ImprovementsMade: []string{},
	}
	if e.provider == nil {
		return fallback
	}

	userPrompt, err := e.prompts.Render(prompt.SelfCritique, map[string]any{"Original": originalJSON})
	if err != nil {
		e.logger.Warn("self-critique prompt failed", "error", err)
		return fallback
	}

	completion, err := e.provider.Complete(ctx, &provider.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    e.maxTokens,
		Temperature:  e.temperature,
	})
	if err != nil {
		e.logger.Warn("self-critique call failed, keeping original", "error", err, "retryable", provider.IsRetryable(err))
		return fallback
	}
	fallback.Usage = Usage{Calls: 1, InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens}

	wc, err := decodeJSON[wireCritique](completion.Text)
	if err != nil {
		e.logger.Warn("self-critique output unparseable, keeping original", "error", err)
		return fallback
	}

	improved, err := decodeImproved(wc.ImprovedResponse)
	if err != nil {
		e.logger.Warn("self-critique produced no usable response, keeping original", "error", err)
		fallback.Critique = strings.TrimSpace(wc.Critique)
		return fallback
	}

	return &CritiqueResult{
		Critique:         strings.TrimSpace(wc.Critique),
		ImprovedResponse: improved.JSON(),
		ImprovementsMade: stringList(wc.ImprovementsMade),
		Applied:          true,
		Usage:            fallback.Usage,
	}
}

// decodeImproved accepts the improved response either as a nested object or
// as a JSON string holding the object.
func decodeImproved(raw json.RawMessage) (*InvocationResponse, error) {
	text := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = s
	}
	return DecodeResponse(text)
}
