package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/ai-conclave/memory"
)

// InMemoryStore implements MemoryStore using in-memory storage
type InMemoryStore struct {
	memories []*memory.Memory
	mu       sync.RWMutex
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memories: make([]*memory.Memory, 0),
	}
}

// AddMemory adds a memory to the store
func (s *InMemoryStore) AddMemory(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	prepare(mem)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.memories {
		if m.ID == mem.ID {
			s.memories[i] = mem
			return nil
		}
	}
	s.memories = append(s.memories, mem)
	return nil
}

// SearchMemory returns the memories matching query, newest first
func (s *InMemoryStore) SearchMemory(ctx context.Context, query string) ([]*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*memory.Memory, 0)
	for _, m := range s.memories {
		if memory.Matches(m, query) {
			out = append(out, m)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Clear removes all memories from the store
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories = make([]*memory.Memory, 0)
	return nil
}

// Count returns the number of memories in the store
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.memories)
}

// prepare fills the ID, timestamps and metadata a store needs.
func prepare(mem *memory.Memory) {
	if mem.ID == "" {
		mem.ID = memory.GenerateMemoryID()
	}
	now := timeNow()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = mem.CreatedAt
	}
	if mem.Metadata == nil {
		mem.Metadata = make(map[string]any)
	}
}

func sortNewestFirst(ms []*memory.Memory) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}
