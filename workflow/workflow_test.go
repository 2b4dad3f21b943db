package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/provider"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

// script holds the recommendation each kind of prompt gets.
type script struct {
	goals, plan1, plan2, fix1, fix2, adjudicate, alignment, joint, implement string
}

func defaultScript() script {
	return script{
		goals:      "Goal: keep p99 latency under 50ms\nOpportunity: share the cache with the search service",
		plan1:      "Finding: use a read-through cache for user profiles\nFinding: expire entries after five minutes",
		fix1:       "Issue: the database connection pool is too small under load",
		fix2:       "Issue: the database connection pool is still too small",
		adjudicate: "Keep caching but bound it with a size limit",
		alignment:  "The revised plan is aligned",
		joint:      "Finding: dashboards for the deployment are missing\nOpportunity: reuse pool metrics in the future",
		implement:  "Implemented the cache layer in Go",
	}
}

type routedProvider struct {
	mu     sync.Mutex
	script script
	kinds  []string
	failOn string
}

func (p *routedProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind, rec := p.route(req.UserPrompt)
	p.kinds = append(p.kinds, kind)
	if kind == p.failOn {
		return nil, &provider.Error{Provider: "stub", Kind: provider.KindRateLimit, StatusCode: 429}
	}
	data, _ := json.Marshal(map[string]any{
		"reasoning":      []map[string]any{{"step": 1, "thought": "think"}},
		"recommendation": rec,
		"confidence":     0.8,
	})
	return &provider.Completion{Text: string(data), InputTokens: 20, OutputTokens: 10}, nil
}

func (p *routedProvider) route(prompt string) (string, string) {
	s := p.script
	plan2 := s.plan2
	if plan2 == "" {
		plan2 = s.plan1
	}
	switch {
	case strings.Contains(prompt, "Two roles disagree"):
		return "adjudicate", s.adjudicate
	case strings.Contains(prompt, "Play two roles in one answer"):
		return "joint", s.joint
	case strings.Contains(prompt, "Before any planning starts"):
		return "goals", s.goals
	case strings.Contains(prompt, "Propose a concrete plan"):
		return "plan", s.plan1
	case strings.Contains(prompt, "Revise the plan"):
		return "revise", plan2
	case strings.Contains(prompt, "Validate this plan"):
		if p.count("validate") > 0 {
			return "validate", s.fix2
		}
		return "validate", s.fix1
	case strings.Contains(prompt, "The plan changed by"):
		return "alignment", s.alignment
	case strings.Contains(prompt, "Implement the plan"):
		return "implement", s.implement
	}
	return "unknown", "unrecognised prompt"
}

func (p *routedProvider) count(kind string) int {
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type memoryStub struct {
	mu      sync.Mutex
	fail    bool
	entries []string
}

func (m *memoryStub) StoreMemory(ctx context.Context, role, task, content string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store unavailable")
	}
	m.entries = append(m.entries, role+"|"+content)
	return nil
}

func newWorkflow(t *testing.T, p provider.Provider, opts ...Option) *Workflow {
	t.Helper()
	team, err := persona.NewTeam(persona.Deps{
		Engine:    reasoning.NewEngine(p, reasoning.WithLogger(logging.Discard())),
		Evaluator: evaluator.New(evaluator.WithLevel(evaluator.LevelLow), evaluator.WithLogger(logging.Discard())),
	}, persona.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	w, err := New(team, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}
	return w
}

func TestExecuteSkipsAlignmentOnSmallChange(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	mem := &memoryStub{}
	res, err := newWorkflow(t, p, WithMemory(mem)).Execute(context.Background(), "add caching to the user service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.TotalCalls != 7 || len(p.kinds) != 7 {
		t.Errorf("expected 7 calls, got %d (%v)", res.TotalCalls, p.kinds)
	}
	wantCalls := []int{3, 2, 2}
	for i, st := range res.Stages {
		if st.CallCount != wantCalls[i] {
			t.Errorf("stage %d: expected %d calls, got %d", st.Stage, wantCalls[i], st.CallCount)
		}
	}
	if res.ChangePercentage != 0 || res.AlignmentTriggered {
		t.Errorf("unchanged plan should not trigger alignment, change %v", res.ChangePercentage)
	}
	if res.SignOff.Stage2[persona.RoleCritic] != Skipped {
		t.Errorf("critic should be skipped in stage 2, got %q", res.SignOff.Stage2[persona.RoleCritic])
	}
	if len(res.SignOff.Stage1) != 3 || len(res.SignOff.Stage3) != 4 || !res.SignOff.Approved {
		t.Errorf("unexpected sign-off %+v", res.SignOff)
	}
	if res.RunID == "" || res.Implementation == nil || res.Implementation.Recommendation != "Implemented the cache layer in Go" {
		t.Errorf("missing run id or implementation: %+v", res)
	}
	if !strings.HasPrefix(res.FinalArtifact, "Finding: use a read-through cache") {
		t.Errorf("final artifact should start from the revised plan, got %q", res.FinalArtifact)
	}
	if res.Usage.Calls != 7 || res.Usage.Tokens() != 210 {
		t.Errorf("unexpected usage %+v", res.Usage)
	}

	if len(res.Opportunities) != 2 {
		t.Fatalf("expected 2 opportunities, got %+v", res.Opportunities)
	}
	if res.Opportunities[0].ID != "ADJ-001" || res.Opportunities[0].OriginStage != 1 {
		t.Errorf("unexpected first opportunity %+v", res.Opportunities[0])
	}
	if res.Opportunities[1].ID != "ADJ-002" || res.Opportunities[1].OriginStage != 3 {
		t.Errorf("unexpected second opportunity %+v", res.Opportunities[1])
	}
	if len(mem.entries) != 2 || !res.Opportunities[0].PersistedToMemory {
		t.Errorf("opportunities should be persisted, got %v", mem.entries)
	}
	if !strings.HasPrefix(mem.entries[0], "critic|") {
		t.Errorf("opportunities are stored under the critic role, got %q", mem.entries[0])
	}
}

func TestExecuteFindingIDsMonotonicPerRole(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ids []string
	for _, f := range res.Findings {
		ids = append(ids, f.ID)
	}
	want := []string{"CRIT-001", "PLAN-001", "PLAN-002", "FIX-001", "PLAN-003", "PLAN-004", "FIX-002", "FIX-003", "IMPL-001"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, ids)
	}
	if res.Stages[1].Findings[0].ID != "PLAN-003" {
		t.Errorf("IDs must not reset between stages, got %s", res.Stages[1].Findings[0].ID)
	}
	if res.Findings[7].Role != persona.RoleFixer || res.Findings[7].Stage != 3 {
		t.Errorf("joint review findings belong to the fixer, got %+v", res.Findings[7])
	}
}

func TestExecuteTriggersAlignmentOnLargeChange(t *testing.T) {
	sc := defaultScript()
	sc.plan2 = "Finding: move profile reads onto a replicated document store\nFinding: drop the cache entirely"
	p := &routedProvider{script: sc}

	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalCalls != 8 {
		t.Errorf("expected 8 calls, got %d (%v)", res.TotalCalls, p.kinds)
	}
	if res.ChangePercentage <= DefaultChangeThreshold || !res.AlignmentTriggered {
		t.Errorf("expected alignment, change %v", res.ChangePercentage)
	}
	if res.Stages[1].CallCount != 3 {
		t.Errorf("alignment is charged to stage 2, got %d", res.Stages[1].CallCount)
	}
	if res.SignOff.Stage2[persona.RoleCritic] != Approved {
		t.Errorf("critic should approve stage 2, got %q", res.SignOff.Stage2[persona.RoleCritic])
	}
}

func TestExecuteChangeThresholdOption(t *testing.T) {
	sc := defaultScript()
	sc.plan2 = "Finding: use a read-through cache for user profiles\nFinding: expire entries after ten minutes"
	p := &routedProvider{script: sc}

	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChangePercentage > DefaultChangeThreshold || res.TotalCalls != 7 {
		t.Errorf("small edit should skip alignment, change %v calls %d", res.ChangePercentage, res.TotalCalls)
	}

	p = &routedProvider{script: sc}
	res, err = newWorkflow(t, p, WithChangeThreshold(0.05)).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AlignmentTriggered || res.TotalCalls != 8 {
		t.Errorf("lower threshold should trigger alignment, change %v calls %d", res.ChangePercentage, res.TotalCalls)
	}
}

func TestExecuteComplexConflictEscalates(t *testing.T) {
	sc := defaultScript()
	sc.plan1 = "Finding: We should add caching"
	sc.fix1 = "Issue: We should not add caching"
	sc.fix2 = "Issue: the connection pool is too small"
	p := &routedProvider{script: sc}

	res, err := newWorkflow(t, p).Execute(context.Background(), "speed up the user service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st1 := res.Stages[0]
	if len(st1.Conflicts) != 1 {
		t.Fatalf("expected one stage 1 conflict, got %+v", st1.Conflicts)
	}
	c := st1.Conflicts[0]
	if c.ID != "C-001" || c.Type != ConflictComplex || c.ResolvedBy != ResolvedByCritic {
		t.Errorf("unexpected conflict %+v", c)
	}
	if c.Resolution != sc.adjudicate {
		t.Errorf("resolution should come from the critic, got %q", c.Resolution)
	}
	if st1.CallCount != 4 || st1.Escalations != 1 {
		t.Errorf("escalation is charged to stage 1: calls %d escalations %d", st1.CallCount, st1.Escalations)
	}
	if res.TotalCalls != 8 || p.count("adjudicate") != 1 {
		t.Errorf("expected 8 calls with one adjudication, got %d (%v)", res.TotalCalls, p.kinds)
	}
	if res.Findings[1].Resolution != sc.adjudicate {
		t.Errorf("resolution should be recorded on the finding, got %+v", res.Findings[1])
	}
	if !strings.Contains(res.FinalArtifact, "C-001: "+sc.adjudicate) {
		t.Errorf("final artifact should carry resolved conflicts, got %q", res.FinalArtifact)
	}
}

func TestExecuteSimpleConflictAutoMerges(t *testing.T) {
	sc := defaultScript()
	sc.plan1 = "Finding: cache user profiles in redis with a short ttl"
	sc.fix1 = "Issue: cache user profiles in redis with a short ttl and warm it on startup"
	sc.fix2 = "Issue: the connection pool is too small"
	p := &routedProvider{script: sc}

	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := res.Stages[0].Conflicts[0]
	if c.Type != ConflictSimple || c.ResolvedBy != ResolvedByAuto {
		t.Errorf("unexpected conflict %+v", c)
	}
	if c.Resolution != "cache user profiles in redis with a short ttl; and warm it on startup" {
		t.Errorf("unexpected merge %q", c.Resolution)
	}
	if res.TotalCalls != 7 || p.count("adjudicate") != 0 {
		t.Errorf("simple conflicts cost no calls, got %d", res.TotalCalls)
	}
}

func TestExecuteMemoryFailureIsNotFatal(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	res, err := newWorkflow(t, p, WithMemory(&memoryStub{fail: true})).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("memory failure must not fail the run: %v", err)
	}
	for _, o := range res.Opportunities {
		if o.PersistedToMemory {
			t.Errorf("opportunity %s should not be marked persisted", o.ID)
		}
	}
}

func TestExecuteProviderFailureAborts(t *testing.T) {
	p := &routedProvider{script: defaultScript(), failOn: "revise"}
	_, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsRetryable(err) {
		t.Errorf("provider error should stay retryable through wrapping, got %v", err)
	}
	if !strings.Contains(err.Error(), StateRevise) {
		t.Errorf("error should name the failing state, got %v", err)
	}
	if len(p.kinds) != 4 {
		t.Errorf("run should stop at the failing call, made %v", p.kinds)
	}
}

func TestExecuteFreshStatePerRun(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	w := newWorkflow(t, p)

	first, err := w.Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := w.Execute(context.Background(), "add caching again")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Error("each run needs its own ID")
	}
	if second.Findings[1].ID != "PLAN-001" || second.TotalCalls != 7 {
		t.Errorf("counters leaked between runs: %s, %d calls", second.Findings[1].ID, second.TotalCalls)
	}
}

func TestResultJSON(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"run_id", "task", "stages", "total_calls", "final_artifact", "change_percentage", "findings", "conflicts", "opportunities", "sign_off"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("result JSON missing %q", key)
		}
	}
	if string(fields["conflicts"]) != "[]" {
		t.Errorf("empty conflicts should encode as [], got %s", fields["conflicts"])
	}
}

func TestExecuteRejectsEmptyTask(t *testing.T) {
	p := &routedProvider{script: defaultScript()}
	if _, err := newWorkflow(t, p).Execute(context.Background(), " "); err == nil {
		t.Error("expected error")
	}
	if len(p.kinds) != 0 {
		t.Error("no calls should be made")
	}
}

func TestExecuteChangeAtThresholdSkipsAlignment(t *testing.T) {
	sc := defaultScript()
	sc.plan1 = "Finding: use a read-through cache for user profiles and expire entries after five minutes to keep latency low under load"
	words := strings.Fields(sc.plan1)
	if len(words) != 20 {
		t.Fatalf("plan should have 20 words, got %d", len(words))
	}
	sc.plan2 = strings.Join(words[:17], " ")
	if got := ChangePercentage(sc.plan1, sc.plan2); got != DefaultChangeThreshold {
		t.Fatalf("expected change of exactly %v, got %v", DefaultChangeThreshold, got)
	}
	p := &routedProvider{script: sc}

	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlignmentTriggered || res.TotalCalls != 7 {
		t.Errorf("change equal to the threshold should skip alignment, calls %d (%v)", res.TotalCalls, p.kinds)
	}
	if res.SignOff.Stage2[persona.RoleCritic] != Skipped {
		t.Errorf("critic should be skipped in stage 2, got %q", res.SignOff.Stage2[persona.RoleCritic])
	}
}

func TestExecuteWordlessRepliesRaiseNoConflicts(t *testing.T) {
	p := &routedProvider{script: script{
		goals: "{}", plan1: "{}", fix1: "{}", fix2: "{}",
		adjudicate: "{}", alignment: "{}", joint: "{}", implement: "{}",
	}}

	res, err := newWorkflow(t, p).Execute(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("wordless findings cannot conflict, got %+v", res.Conflicts)
	}
	if res.TotalCalls != 7 {
		t.Errorf("expected 7 calls, got %d (%v)", res.TotalCalls, p.kinds)
	}
}
