// Package groq targets Groq's OpenAI-compatible endpoint through the OpenAI
// SDK provider.
package groq

import (
	"github.com/sweetpotato0/ai-conclave/contrib/provider/openai"
)

// BaseURL is Groq's OpenAI-compatible API root.
const BaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is used when no model is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// DefaultConfig returns default Groq configuration
func DefaultConfig(apiKey string) *openai.Config {
	return &openai.Config{
		APIKey:      apiKey,
		BaseURL:     BaseURL,
		Model:       DefaultModel,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// New creates a Groq provider. An empty BaseURL or model falls back to the
// Groq defaults.
func New(config *openai.Config) *openai.Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.BaseURL == "" {
		config.BaseURL = BaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return openai.New(config)
}
