package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

type stubProvider struct {
	mu      sync.Mutex
	failed  []string
	prompts []string
}

func (p *stubProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, req.UserPrompt)

	resp := map[string]any{
		"reasoning":      []map[string]any{{"step": 1, "thought": "consider it"}},
		"recommendation": "Response number for the current request",
		"confidence":     0.8,
		"validations":    map[string]any{"passed": []string{"compiles"}, "failed": []string{}},
	}
	if strings.Contains(req.UserPrompt, "Implement the plan") {
		resp["code_output"] = "package cache"
		resp["validations"] = map[string]any{"passed": []string{"compiles"}, "failed": p.failed}
	}
	data, _ := json.Marshal(resp)
	return &provider.Completion{Text: string(data), InputTokens: 10, OutputTokens: 5}, nil
}

func newOrchestrator(t *testing.T, p provider.Provider, opts ...Option) *Orchestrator {
	t.Helper()
	team, err := persona.NewTeam(persona.Deps{
		Engine:    reasoning.NewEngine(p, reasoning.WithLogger(logging.Discard())),
		Evaluator: evaluator.New(evaluator.WithLevel(evaluator.LevelLow), evaluator.WithLogger(logging.Discard())),
	}, persona.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	o, err := New(team, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return o
}

func TestInvokeAgent(t *testing.T) {
	p := &stubProvider{}
	o := newOrchestrator(t, p)

	res, err := o.InvokeAgent(context.Background(), persona.RoleFixer, "find bugs in this loop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Role != persona.RoleFixer || len(p.prompts) != 1 {
		t.Errorf("expected one fixer call, got role %s and %d calls", res.Role, len(p.prompts))
	}
	if _, err := o.InvokeAgent(context.Background(), "oracle", "x"); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected invalid input for unknown role, got %v", err)
	}
}

func TestQuickReview(t *testing.T) {
	p := &stubProvider{}
	o := newOrchestrator(t, p)

	r, err := o.QuickReview(context.Background(), "add caching to the user service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Plan.Role != persona.RolePlanner || r.Evaluation.Role != persona.RoleCritic {
		t.Errorf("unexpected roles %s, %s", r.Plan.Role, r.Evaluation.Role)
	}
	if r.Usage.Calls != 2 || r.Usage.Tokens() != 30 {
		t.Errorf("unexpected usage %+v", r.Usage)
	}
	if _, err := o.QuickReview(context.Background(), ""); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestRunPipeline(t *testing.T) {
	t.Run("clean implementation skips diagnosis", func(t *testing.T) {
		p := &stubProvider{failed: []string{}}
		res, err := newOrchestrator(t, p).RunPipeline(context.Background(), "build an LRU cache")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Diagnosis != nil {
			t.Error("diagnosis should not run without failed validations")
		}
		if res.MetaAnalysis == nil {
			t.Error("meta-analysis runs by default")
		}
		if res.Usage.Calls != 3 || len(p.prompts) != 3 {
			t.Errorf("expected 3 calls, got %d", res.Usage.Calls)
		}
	})

	t.Run("failed validations trigger diagnosis", func(t *testing.T) {
		p := &stubProvider{failed: []string{"eviction test fails"}}
		res, err := newOrchestrator(t, p).RunPipeline(context.Background(), "build an LRU cache")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Diagnosis == nil || res.Diagnosis.Role != persona.RoleFixer {
			t.Fatal("expected a fixer diagnosis")
		}
		if !strings.Contains(p.prompts[2], "failed 1 validation(s):\n- eviction test fails") {
			t.Errorf("diagnosis prompt should list the failed validations:\n%s", p.prompts[2])
		}
		if !strings.Contains(p.prompts[2], "## Code\npackage cache") {
			t.Errorf("diagnosis context should carry the generated code:\n%s", p.prompts[2])
		}
		if !strings.Contains(p.prompts[3], "Diagnosis:") {
			t.Error("meta-analysis should include the diagnosis")
		}
		if res.Usage.Calls != 4 {
			t.Errorf("expected 4 calls, got %d", res.Usage.Calls)
		}
	})

	t.Run("meta-analysis can be disabled", func(t *testing.T) {
		p := &stubProvider{}
		res, err := newOrchestrator(t, p, WithMetaAnalysis(false)).RunPipeline(context.Background(), "build it")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MetaAnalysis != nil || res.Usage.Calls != 2 {
			t.Errorf("expected only blueprint and implementation, got %d calls", res.Usage.Calls)
		}
	})
}

func TestNewRequiresTeam(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
