package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/memory/store"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Mode() != reasoning.ModeNone || cfg.Level() != evaluator.LevelMedium {
		t.Errorf("unexpected defaults: mode %s level %s", cfg.Mode(), cfg.Level())
	}
	if cfg.Pricing() != evaluator.DefaultPricing() {
		t.Errorf("unexpected pricing %+v", cfg.Pricing())
	}
	if !cfg.Workflow.MetaAnalysis || cfg.Workflow.ChangeThreshold != 0.15 {
		t.Errorf("unexpected workflow defaults %+v", cfg.Workflow)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := writeFile(t, `
provider:
  name: OpenAI
  model: gpt-4o-mini
  api_key: from-file
reasoning:
  mode: fast
  self_critique: true
evaluation:
  level: strict
workflow:
  change_threshold: 0.3
memory:
  backend: redis
  redis:
    addr: cache:6379
runner:
  concurrency: 8
`)
	t.Setenv("CONCLAVE_API_KEY", "from-env")
	t.Setenv("CONCLAVE_REASONING_MODE", "robust")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_PREFIX", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != ProviderOpenAI || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("unexpected provider %+v", cfg.Provider)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("env should override the file, got %q", cfg.Provider.APIKey)
	}
	if cfg.Mode() != reasoning.ModeRobust || !cfg.Reasoning.SelfCritique {
		t.Errorf("unexpected reasoning %+v", cfg.Reasoning)
	}
	if cfg.Level() != evaluator.LevelStrict || cfg.Workflow.ChangeThreshold != 0.3 {
		t.Errorf("unexpected evaluation or workflow: %+v %+v", cfg.Evaluation, cfg.Workflow)
	}
	if cfg.Memory.Backend != store.BackendRedis || cfg.Memory.Redis.Addr != "cache:6379" {
		t.Errorf("unexpected memory %+v", cfg.Memory.Redis)
	}
	if cfg.Memory.Redis.Prefix != "conclave:memory:" || cfg.Memory.Redis.TTL != time.Hour {
		t.Errorf("defaults not kept under partial section: %+v", cfg.Memory.Redis)
	}
	if cfg.Runner.Concurrency != 8 || cfg.Provider.MaxTokens != 4096 {
		t.Errorf("unexpected runner or max tokens: %d %d", cfg.Runner.Concurrency, cfg.Provider.MaxTokens)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
reasoning:
  mode: exhaustive
workflow:
  similarity_threshold: 1.5
`)
	_, err := Load(path)
	if !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadRejectsBadEnvNumbers(t *testing.T) {
	t.Setenv("CONCLAVE_MAX_TOKENS", "lots")
	if _, err := Load(""); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = ""
	if err := cfg.RequireCredentials(); err == nil {
		t.Error("expected missing key error")
	}
	cfg.Provider.APIKey = "k"
	if err := cfg.RequireCredentials(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPromptOverrides(t *testing.T) {
	path := writeFile(t, `
prompts:
  critic.set_goals: "Goals for {{.Task}} only"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lib, err := cfg.PromptLibrary()
	if err != nil {
		t.Fatalf("prompt library: %v", err)
	}
	out, err := lib.Render(prompt.CriticSetGoals, map[string]any{"Task": "caching"})
	if err != nil || out != "Goals for caching only" {
		t.Errorf("override not applied: %q (%v)", out, err)
	}
	if _, err := lib.Get(prompt.PlannerDesign); err != nil {
		t.Errorf("built-in templates should remain: %v", err)
	}
}

func TestPromptOverridesRejected(t *testing.T) {
	for name, body := range map[string]string{
		"unknown":  "prompts:\n  critic.poetry: \"x\"\n",
		"template": "prompts:\n  critic.set_goals: \"{{.Task\"\n",
	} {
		if _, err := Load(writeFile(t, body)); !errors.Is(err, errorspkg.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}
