package prompt

import (
	"strings"
	"testing"
)

func TestTemplateRender(t *testing.T) {
	tmpl, err := NewTemplate("greet", "Hello {{.Name}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := tmpl.Render(map[string]any{"Name": "world"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello world" {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := tmpl.Render(map[string]any{}); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestManagerRegister(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("a", "x"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RegisterString("a", "y"); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := m.Override("a", "y"); err != nil {
		t.Fatalf("override: %v", err)
	}
	out, _ := m.Render("a", nil)
	if out != "y" {
		t.Errorf("override not applied, got %q", out)
	}
	if _, err := m.Get("missing"); err == nil {
		t.Error("expected not found error")
	}
}

func TestDefaultLibraryRenders(t *testing.T) {
	m := NewDefault()
	vars := map[string]any{
		"Prompt":         "p",
		"Original":       "o",
		"Task":           "build a cache",
		"Goals":          "",
		"Plan":           "plan",
		"Feedback":       []string{"Issue: no eviction"},
		"Resolutions":    []string{},
		"Problem":        "p",
		"Context":        "",
		"Output":         "out",
		"RoleA":          "planner",
		"RoleB":          "fixer",
		"FindingA":       "a",
		"FindingB":       "b",
		"Revised":        "r",
		"Change":         42.0,
		"Artifact":       "art",
		"Blueprint":      "bp",
		"Implementation": "impl",
		"Diagnosis":      "",
	}
	for _, name := range m.List() {
		if _, err := m.Render(name, vars); err != nil {
			t.Errorf("template %s failed to render: %v", name, err)
		}
	}

	out, _ := m.Render(PlannerRevise, vars)
	if !strings.Contains(out, "- Issue: no eviction") || !strings.Contains(out, "- (none)") {
		t.Errorf("bullets not rendered: %s", out)
	}
}

func TestBuilder(t *testing.T) {
	out := NewBuilder().
		Add("intro\n").
		AddSection("Empty", "  ").
		AddSection("Plan", "step one").
		AddFormat("total %d", 2).
		Build()

	if strings.Contains(out, "Empty") {
		t.Error("empty sections should be skipped")
	}
	if !strings.HasPrefix(out, "intro\n## Plan\nstep one") || !strings.HasSuffix(out, "total 2") {
		t.Errorf("unexpected build output %q", out)
	}
	if got := NewBuilder().Add("answer\n\n").AddSection("Code", "").Build(); got != "answer" {
		t.Errorf("trailing newlines should be trimmed, got %q", got)
	}
}

func TestJointReviewCapsGoals(t *testing.T) {
	goals := strings.Repeat("g", 2500)
	out, err := NewDefault().Render(JointReview, map[string]any{
		"Task":     "build a cache",
		"Goals":    goals,
		"Artifact": "art",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, goals) || !strings.Contains(out, strings.Repeat("g", 2000)+"...") {
		t.Error("goals should be cut to 2000 characters")
	}

	out, _ = NewDefault().Render(JointReview, map[string]any{"Task": "t", "Goals": "short goals", "Artifact": "a"})
	if !strings.Contains(out, "short goals\n") {
		t.Errorf("short goals should be kept whole, got %q", out)
	}
}
