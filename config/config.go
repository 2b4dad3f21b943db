// Package config loads the deliberation engine configuration from defaults,
// an optional .env file, an optional YAML file and CONCLAVE_* environment
// variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/memory/store"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/reasoning"
	"github.com/sweetpotato0/ai-conclave/workflow"
	"gopkg.in/yaml.v3"
)

// Supported provider names.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// ProviderConfig selects the completion provider
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// MaxCalls caps completions per process; 0 disables the budget.
	MaxCalls int `yaml:"max_calls"`
	// Tokenizer names a tiktoken model or encoding used when an API omits usage.
	Tokenizer string `yaml:"tokenizer"`
}

type ReasoningConfig struct {
	Mode         string `yaml:"mode"`
	SelfCritique bool   `yaml:"self_critique"`
}

type EvaluationConfig struct {
	Level          string  `yaml:"level"`
	MinSuccessRate float64 `yaml:"min_success_rate"`
	InputPer1K     float64 `yaml:"input_per_1k"`
	OutputPer1K    float64 `yaml:"output_per_1k"`
}

type WorkflowConfig struct {
	ChangeThreshold     float64 `yaml:"change_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MetaAnalysis        bool    `yaml:"meta_analysis"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

type RunnerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Config is the full application configuration
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Memory     store.Config     `yaml:"memory"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Runner     RunnerConfig     `yaml:"runner"`
	// Prompts replaces built-in prompt templates, keyed by template name.
	Prompts map[string]string `yaml:"prompts"`
}

// Default returns the built-in configuration
func Default() *Config {
	pricing := evaluator.DefaultPricing()
	return &Config{
		Provider: ProviderConfig{
			Name:        ProviderClaude,
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Reasoning: ReasoningConfig{Mode: string(reasoning.ModeNone)},
		Evaluation: EvaluationConfig{
			Level:          string(evaluator.LevelMedium),
			MinSuccessRate: evaluator.DefaultMinSuccessRate,
			InputPer1K:     pricing.InputPer1K,
			OutputPer1K:    pricing.OutputPer1K,
		},
		Workflow: WorkflowConfig{
			ChangeThreshold:     workflow.DefaultChangeThreshold,
			SimilarityThreshold: workflow.DefaultSimilarityThreshold,
			MetaAnalysis:        true,
		},
		Memory: store.DefaultConfig(),
		Telemetry: TelemetryConfig{
			ServiceName: "ai-conclave",
		},
		Runner: RunnerConfig{Concurrency: 4},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", errorspkg.ErrInvalidInput, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	r := &envReader{}

	r.string("CONCLAVE_PROVIDER", &c.Provider.Name)
	r.string("CONCLAVE_MODEL", &c.Provider.Model)
	r.string("CONCLAVE_BASE_URL", &c.Provider.BaseURL)
	r.int("CONCLAVE_MAX_TOKENS", &c.Provider.MaxTokens)
	r.float("CONCLAVE_TEMPERATURE", &c.Provider.Temperature)
	r.int("CONCLAVE_MAX_CALLS", &c.Provider.MaxCalls)
	r.string("CONCLAVE_TOKENIZER", &c.Provider.Tokenizer)
	if c.Provider.APIKey == "" {
		r.string(vendorKeyEnv(c.Provider.Name), &c.Provider.APIKey)
	}
	r.string("CONCLAVE_API_KEY", &c.Provider.APIKey)

	r.string("CONCLAVE_REASONING_MODE", &c.Reasoning.Mode)
	r.bool("CONCLAVE_SELF_CRITIQUE", &c.Reasoning.SelfCritique)

	r.string("CONCLAVE_VALIDATION_LEVEL", &c.Evaluation.Level)
	r.float("CONCLAVE_MIN_SUCCESS_RATE", &c.Evaluation.MinSuccessRate)

	r.float("CONCLAVE_CHANGE_THRESHOLD", &c.Workflow.ChangeThreshold)
	r.float("CONCLAVE_SIMILARITY_THRESHOLD", &c.Workflow.SimilarityThreshold)
	r.bool("CONCLAVE_META_ANALYSIS", &c.Workflow.MetaAnalysis)

	r.string("CONCLAVE_MEMORY_BACKEND", &c.Memory.Backend)
	if c.Memory.Redis != nil {
		r.string("REDIS_ADDR", &c.Memory.Redis.Addr)
		r.string("REDIS_PASSWORD", &c.Memory.Redis.Password)
		r.int("REDIS_DB", &c.Memory.Redis.DB)
		r.string("REDIS_PREFIX", &c.Memory.Redis.Prefix)
		r.duration("REDIS_TTL", &c.Memory.Redis.TTL)
	}
	if c.Memory.Mongo != nil {
		r.string("MONGODB_URI", &c.Memory.Mongo.URI)
		r.string("MONGODB_DB", &c.Memory.Mongo.Database)
		r.string("MONGODB_COLLECTION", &c.Memory.Mongo.Collection)
	}
	if c.Memory.Postgres != nil {
		r.string("POSTGRES_HOST", &c.Memory.Postgres.Host)
		r.int("POSTGRES_PORT", &c.Memory.Postgres.Port)
		r.string("POSTGRES_USER", &c.Memory.Postgres.User)
		r.string("POSTGRES_PASSWORD", &c.Memory.Postgres.Password)
		r.string("POSTGRES_DB", &c.Memory.Postgres.DBName)
		r.string("POSTGRES_SSLMODE", &c.Memory.Postgres.SSLMode)
	}

	r.bool("CONCLAVE_TELEMETRY", &c.Telemetry.Enabled)
	r.string("CONCLAVE_SERVICE_NAME", &c.Telemetry.ServiceName)
	r.string("CONCLAVE_ENV", &c.Telemetry.Environment)

	r.int("CONCLAVE_CONCURRENCY", &c.Runner.Concurrency)
	return r.err()
}

func vendorKeyEnv(name string) string {
	switch name {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func (c *Config) normalize() {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	c.Reasoning.Mode = strings.ToLower(strings.TrimSpace(c.Reasoning.Mode))
	c.Evaluation.Level = strings.ToLower(strings.TrimSpace(c.Evaluation.Level))
	c.Memory.Backend = strings.ToLower(strings.TrimSpace(c.Memory.Backend))
	if c.Reasoning.Mode == "" {
		c.Reasoning.Mode = string(reasoning.ModeNone)
	}
	if c.Evaluation.Level == "" {
		c.Evaluation.Level = string(evaluator.LevelMedium)
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = store.BackendInMemory
	}
}

// Validate checks every section. Credentials are checked separately by
// RequireCredentials so commands that never call a provider can run without
// them.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("provider.name", c.Provider.Name, ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderGroq)
	v.RequirePositive("provider.max_tokens", c.Provider.MaxTokens)
	v.ValidateFloatRange("provider.temperature", c.Provider.Temperature, 0.0, 2.0)
	v.RequireNonNegative("provider.max_calls", c.Provider.MaxCalls)

	v.ValidateOneOf("reasoning.mode", c.Reasoning.Mode,
		string(reasoning.ModeNone), string(reasoning.ModeFast), string(reasoning.ModeRobust))

	v.ValidateOneOf("evaluation.level", c.Evaluation.Level,
		string(evaluator.LevelLow), string(evaluator.LevelMedium), string(evaluator.LevelHigh), string(evaluator.LevelStrict))
	v.ValidateFloatRange("evaluation.min_success_rate", c.Evaluation.MinSuccessRate, 0.0, 1.0)
	if c.Evaluation.InputPer1K < 0 || c.Evaluation.OutputPer1K < 0 {
		v.add("evaluation.pricing", "rates must not be negative")
	}

	v.ValidateFloatRange("workflow.change_threshold", c.Workflow.ChangeThreshold, 0.0, 100.0)
	v.ValidateFloatRange("workflow.similarity_threshold", c.Workflow.SimilarityThreshold, 0.0, 1.0)

	validateMemory(v, c.Memory)

	if c.Telemetry.Enabled {
		v.RequireNonEmpty("telemetry.service_name", c.Telemetry.ServiceName)
	}
	v.RequirePositive("runner.concurrency", c.Runner.Concurrency)

	known := prompt.NewDefault().List()
	for _, name := range c.promptNames() {
		v.ValidateOneOf("prompts", name, known...)
		if _, err := prompt.NewTemplate(name, c.Prompts[name]); err != nil {
			v.add("prompts."+name, "%v", err)
		}
	}

	return v.Error()
}

// PromptLibrary returns the built-in templates with the configured
// overrides applied.
func (c *Config) PromptLibrary() (*prompt.Manager, error) {
	m := prompt.NewDefault()
	for _, name := range c.promptNames() {
		if err := m.Override(name, c.Prompts[name]); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
	}
	return m, nil
}

func (c *Config) promptNames() []string {
	names := make([]string, 0, len(c.Prompts))
	for name := range c.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireCredentials reports a missing provider API key.
func (c *Config) RequireCredentials() error {
	return NewValidator().RequireNonEmpty("provider.api_key", c.Provider.APIKey).Error()
}

// Mode returns the parsed reasoning mode.
func (c *Config) Mode() reasoning.Mode {
	mode, err := reasoning.ParseMode(c.Reasoning.Mode)
	if err != nil {
		return reasoning.ModeNone
	}
	return mode
}

// Level returns the parsed validation level.
func (c *Config) Level() evaluator.Level {
	level, err := evaluator.ParseLevel(c.Evaluation.Level)
	if err != nil {
		return evaluator.LevelMedium
	}
	return level
}

// Pricing returns the configured token rates.
func (c *Config) Pricing() evaluator.Pricing {
	return evaluator.Pricing{InputPer1K: c.Evaluation.InputPer1K, OutputPer1K: c.Evaluation.OutputPer1K}
}
