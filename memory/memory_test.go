package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

type sliceStore struct {
	memories []*Memory
	err      error
}

func (s *sliceStore) AddMemory(ctx context.Context, m *Memory) error {
	if s.err != nil {
		return s.err
	}
	s.memories = append(s.memories, m)
	return nil
}

func (s *sliceStore) SearchMemory(ctx context.Context, query string) ([]*Memory, error) {
	var out []*Memory
	for _, m := range s.memories {
		if Matches(m, query) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestGenerateMemoryID(t *testing.T) {
	id1, id2 := GenerateMemoryID(), GenerateMemoryID()
	if !strings.HasPrefix(id1, "mem_") {
		t.Errorf("unexpected ID format %q", id1)
	}
	if id1 == id2 {
		t.Errorf("generated duplicate IDs: %s", id1)
	}
}

func TestMatches(t *testing.T) {
	m := &Memory{Role: "critic", Task: "Add caching", Content: "Share the cache with search"}
	cases := map[string]bool{
		"":        true,
		"CACHE":   true,
		"caching": true,
		"critic":  true,
		"crit":    false,
		"billing": false,
	}
	for q, want := range cases {
		if got := Matches(m, q); got != want {
			t.Errorf("%q: expected %v", q, want)
		}
	}
}

func TestRecorderStoreMemory(t *testing.T) {
	store := &sliceStore{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(store, WithClock(func() time.Time { return at }), WithLogger(logging.Discard()))

	ctx := runctx.WithRunID(context.Background(), "run-42")
	if err := r.StoreMemory(ctx, "critic", "add caching", "Opportunity: share the cache", 0.75); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.memories) != 1 {
		t.Fatalf("expected one memory, got %d", len(store.memories))
	}
	m := store.memories[0]
	if m.Role != "critic" || m.Task != "add caching" || m.QualityScore != 0.75 {
		t.Errorf("unexpected memory %+v", m)
	}
	if !m.CreatedAt.Equal(at) || m.Metadata["run_id"] != "run-42" {
		t.Errorf("timestamps or run id not recorded: %+v", m)
	}

	found, err := r.Search(context.Background(), "share")
	if err != nil || len(found) != 1 {
		t.Errorf("expected to find the memory, got %d (%v)", len(found), err)
	}
}

func TestRecorderErrors(t *testing.T) {
	boom := errors.New("down")
	r := NewRecorder(&sliceStore{err: boom}, WithLogger(logging.Discard()))
	if err := r.StoreMemory(context.Background(), "critic", "t", "content", 1); !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	if err := r.StoreMemory(context.Background(), "critic", "t", "  ", 1); err == nil {
		t.Error("expected error for empty content")
	}
	if err := NewRecorder(nil).StoreMemory(context.Background(), "critic", "t", "c", 1); err == nil {
		t.Error("expected error without store")
	}
}
