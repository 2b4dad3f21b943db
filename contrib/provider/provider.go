// Package provider builds a completion provider from its name and settings.
package provider

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/ai-conclave/contrib/provider/claude"
	"github.com/sweetpotato0/ai-conclave/contrib/provider/gemini"
	"github.com/sweetpotato0/ai-conclave/contrib/provider/groq"
	"github.com/sweetpotato0/ai-conclave/contrib/provider/openai"
	"github.com/sweetpotato0/ai-conclave/contrib/tokenizer/tiktoken"
	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	core "github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/tokenizer"
)

// Settings are the backend-neutral provider options.
type Settings struct {
	Name        string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	// Tokenizer names a tiktoken model or encoding. Empty uses the
	// whitespace estimate.
	Tokenizer string
}

// Open returns the provider named by s.Name. Completions that come back
// without usage get estimated token counts. The returned close function is
// never nil.
func Open(s Settings) (core.Provider, func() error, error) {
	noop := func() error { return nil }

	counter, err := newCounter(s.Tokenizer)
	if err != nil {
		return nil, noop, err
	}

	switch s.Name {
	case "claude", "":
		cfg := claude.DefaultConfig(s.APIKey, s.BaseURL)
		applyCommon(&cfg.Model, &cfg.MaxTokens, &cfg.Temperature, s)
		return withUsage(claude.New(cfg), counter), noop, nil
	case "openai":
		cfg := openai.DefaultConfig().WithAPIKey(s.APIKey).WithBaseURL(s.BaseURL)
		applyCommon(&cfg.Model, &cfg.MaxTokens, &cfg.Temperature, s)
		return withUsage(openai.New(cfg), counter), noop, nil
	case "groq":
		cfg := groq.DefaultConfig(s.APIKey)
		if s.BaseURL != "" {
			cfg.BaseURL = s.BaseURL
		}
		applyCommon(&cfg.Model, &cfg.MaxTokens, &cfg.Temperature, s)
		return withUsage(groq.New(cfg), counter), noop, nil
	case "gemini":
		cfg := gemini.DefaultConfig(s.APIKey)
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.MaxTokens > 0 {
			cfg.MaxTokens = s.MaxTokens
		}
		if s.Temperature > 0 {
			cfg.Temperature = float32(s.Temperature)
		}
		p := gemini.New(cfg).WithCounter(counter)
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown provider %q: %w", s.Name, errorspkg.ErrInvalidInput)
	}
}

func applyCommon(model *string, maxTokens *int64, temperature *float64, s Settings) {
	if s.Model != "" {
		*model = s.Model
	}
	if s.MaxTokens > 0 {
		*maxTokens = int64(s.MaxTokens)
	}
	if s.Temperature > 0 {
		*temperature = s.Temperature
	}
}

func newCounter(name string) (tokenizer.Counter, error) {
	if name == "" {
		return tokenizer.NewSimpleCounter(), nil
	}
	c, err := tiktoken.New(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %q: %w", name, err)
	}
	return c, nil
}

func withUsage(p core.Provider, counter tokenizer.Counter) core.Provider {
	return core.Func(func(ctx context.Context, req *core.Request) (*core.Completion, error) {
		c, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		core.EnsureUsage(c, req, counter)
		return c, nil
	})
}
