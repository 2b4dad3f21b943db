package persona

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/reasoning"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

type stubProvider struct {
	mu       sync.Mutex
	reply    func(req *provider.Request, n int) string
	requests []*provider.Request
}

func (p *stubProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	return &provider.Completion{Text: p.reply(req, n), InputTokens: 100, OutputTokens: 50}, nil
}

func structured(rec string) string {
	data, _ := json.Marshal(map[string]any{
		"reasoning": []map[string]any{
			{"step": 1, "thought": "read the task"},
			{"step": 2, "thought": "weigh options"},
			{"step": 3, "thought": "decide"},
		},
		"recommendation": rec,
		"confidence":     0.9,
		"alternatives":   []string{"do nothing"},
		"warnings":       []string{"assumes low traffic"},
	})
	return string(data)
}

func deps(p provider.Provider, level evaluator.Level) Deps {
	return Deps{
		Engine:    reasoning.NewEngine(p, reasoning.WithLogger(logging.Discard())),
		Evaluator: evaluator.New(evaluator.WithLevel(level), evaluator.WithLogger(logging.Discard())),
	}
}

func TestInvokeStructured(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return structured("Use a token bucket per tenant") }}
	planner := NewPlanner(deps(p, evaluator.LevelMedium), WithLogger(logging.Discard()))

	res, err := planner.Invoke(context.Background(), "design a rate limiter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Role != RolePlanner {
		t.Errorf("unexpected role %s", res.Role)
	}
	if res.Response.Recommendation != "Use a token bucket per tenant" {
		t.Errorf("unexpected recommendation %q", res.Response.Recommendation)
	}
	if res.Usage.Calls != 1 || res.Metrics.Cost.Tokens != 150 {
		t.Errorf("unexpected usage %+v / %+v", res.Usage, res.Metrics.Cost)
	}
	if p.requests[0].SystemPrompt != plannerInstruction {
		t.Error("planner instruction should be the system prompt")
	}
}

func TestInvokeUnparseableNeverFails(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return "just some prose about the design" }}
	fixer := NewFixer(deps(p, evaluator.LevelMedium), WithLogger(logging.Discard()))

	res, err := fixer.Invoke(context.Background(), "check this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response.Validations.Passed == nil || res.Response.Validations.Failed == nil {
		t.Error("validations must always be present")
	}
	if res.Response.Recommendation != "just some prose about the design" {
		t.Errorf("fallback should keep the text, got %q", res.Response.Recommendation)
	}
}

func TestInvokeModeControlsCalls(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return structured("same answer every time") }}
	critic := NewCritic(deps(p, evaluator.LevelLow), WithMode(reasoning.ModeRobust), WithLogger(logging.Discard()))

	res, err := critic.Invoke(context.Background(), "judge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.requests) != 5 || res.Usage.Calls != 5 {
		t.Errorf("robust mode should make 5 calls, made %d", len(p.requests))
	}
	if res.Metrics.Stability.PathsEvaluated != 5 || res.Metrics.Stability.ConsistencyScore != 1 {
		t.Errorf("unexpected stability %+v", res.Metrics.Stability)
	}
}

func TestInvokeSelfCritique(t *testing.T) {
	p := &stubProvider{reply: func(req *provider.Request, n int) string {
		if n == 0 {
			return structured("first draft answer")
		}
		return `{"critique": "missing eviction", "improvements_made": ["eviction"], "improved_response": ` + structured("improved answer with eviction") + `}`
	}}
	impl := NewImplementer(deps(p, evaluator.LevelMedium), WithSelfCritique(true), WithLogger(logging.Discard()))

	res, err := impl.Invoke(context.Background(), "build it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Critique == nil || !res.Critique.Applied {
		t.Fatal("expected critique to apply")
	}
	if res.Response.Recommendation != "improved answer with eviction" {
		t.Errorf("critique should replace the response, got %q", res.Response.Recommendation)
	}
	if res.Usage.Calls != 2 || len(res.Metrics.Latency.PerStepMs) != 2 {
		t.Errorf("expected two calls and two timed steps, got %+v", res.Usage)
	}
}

func TestInvokeStrictEnforcement(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return "ok" }}
	planner := NewPlanner(deps(p, evaluator.LevelStrict), WithLogger(logging.Discard()))

	ctx := runctx.WithAction(runctx.WithRunID(context.Background(), "run-9"), "stage1.plan")
	_, err := planner.Invoke(ctx, "design")

	var valErr *errorspkg.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.RunID != "run-9" || valErr.Role != "planner" || valErr.Action != "stage1.plan" {
		t.Errorf("unexpected error context %+v", valErr.Context)
	}
}

func TestConvenienceMethodsTemplatePrompts(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return structured("fine") }}
	team, err := NewTeam(deps(p, evaluator.LevelLow), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	ctx := context.Background()

	calls := []func() (*InvocationResult, error){
		func() (*InvocationResult, error) { return team.Planner.Design(ctx, "TASK-X", "") },
		func() (*InvocationResult, error) {
			return team.Planner.Revise(ctx, "TASK-X", "plan", []string{"fb"}, nil)
		},
		func() (*InvocationResult, error) { return team.Fixer.Validate(ctx, "TASK-X", "plan") },
		func() (*InvocationResult, error) { return team.Fixer.Diagnose(ctx, "TASK-X", "") },
		func() (*InvocationResult, error) { return team.Implementer.Implement(ctx, "TASK-X", "plan") },
		func() (*InvocationResult, error) { return team.Critic.SetGoals(ctx, "TASK-X") },
		func() (*InvocationResult, error) { return team.Critic.Evaluate(ctx, "TASK-X", "out") },
		func() (*InvocationResult, error) {
			return team.Critic.Adjudicate(ctx, "TASK-X", RolePlanner, "a", RoleFixer, "b")
		},
		func() (*InvocationResult, error) { return team.Critic.CheckAlignment(ctx, "TASK-X", "a", "b", 0.4) },
	}
	for i, call := range calls {
		if _, err := call(); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !strings.Contains(p.requests[i].UserPrompt, "TASK-X") {
			t.Errorf("call %d: prompt should contain the task", i)
		}
	}
	if !strings.Contains(p.requests[8].UserPrompt, "40%") {
		t.Errorf("alignment prompt should show the change percentage")
	}
}

func TestRoleLookup(t *testing.T) {
	d := deps(&stubProvider{reply: func(*provider.Request, int) string { return "" }}, evaluator.LevelLow)
	for _, role := range Roles() {
		p, err := New(role, d)
		if err != nil {
			t.Fatalf("%s: %v", role, err)
		}
		if p.Role() != role {
			t.Errorf("expected %s, got %s", role, p.Role())
		}
	}
	if _, err := New("oracle", d); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if _, err := New(RolePlanner, Deps{}); err == nil {
		t.Error("expected error without engine")
	}
	if r, err := ParseRole(" Critic "); err != nil || r != RoleCritic {
		t.Errorf("ParseRole should normalise input")
	}

	team, _ := NewTeam(d)
	if m, _ := team.Get(RoleFixer); m.Role() != RoleFixer {
		t.Error("team lookup returned wrong member")
	}
}

func TestInvokeRejectsEmptyPrompt(t *testing.T) {
	p := &stubProvider{reply: func(*provider.Request, int) string { return "" }}
	if _, err := NewCritic(deps(p, evaluator.LevelLow)).Invoke(context.Background(), "  "); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if len(p.requests) != 0 {
		t.Error("no provider call should be made")
	}
}

func TestInvokeOutOfRangeConfidenceFailsCheck(t *testing.T) {
	for _, conf := range []any{7, 150, -3, "85"} {
		p := &stubProvider{reply: func(*provider.Request, int) string {
			data, _ := json.Marshal(map[string]any{
				"reasoning":      []map[string]any{{"step": 1, "thought": "decide"}},
				"recommendation": "Use a token bucket per tenant",
				"confidence":     conf,
			})
			return string(data)
		}}
		planner := NewPlanner(deps(p, evaluator.LevelMedium), WithLogger(logging.Discard()))

		res, err := planner.Invoke(context.Background(), "design a rate limiter")
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", conf, err)
		}
		if c := res.Response.Confidence; c < 0 || c > 1 {
			t.Errorf("%v: stored confidence should be clamped, got %v", conf, c)
		}
		failed := strings.Join(res.Metrics.Accuracy.FailedChecks, ",")
		if !strings.Contains(failed, "confidence_in_range") {
			t.Errorf("%v: expected confidence_in_range to fail, got %q", conf, failed)
		}
	}
}
