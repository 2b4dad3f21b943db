package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

// Memory is one persisted note from a deliberation, such as an adjacent
// opportunity the critic raised.
type Memory struct {
	ID           string         `json:"id"`
	Role         string         `json:"role"`
	Task         string         `json:"task"`
	Content      string         `json:"content"`
	QualityScore float64        `json:"quality_score"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// GenerateMemoryID returns a new unique memory ID.
func GenerateMemoryID() string {
	return "mem_" + uuid.NewString()
}

// Matches reports whether m matches query: an empty query matches
// everything, otherwise the query must occur in the content, task or role,
// ignoring case.
func Matches(m *Memory, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Content), q) ||
		strings.Contains(strings.ToLower(m.Task), q) ||
		strings.EqualFold(m.Role, q)
}

// MemoryStore defines the interface for storing and retrieving memories.
// SearchMemory returns matches newest first.
type MemoryStore interface {
	AddMemory(context.Context, *Memory) error
	SearchMemory(context.Context, string) ([]*Memory, error)
}

// Recorder writes deliberation notes into a MemoryStore.
type Recorder struct {
	store  MemoryStore
	now    func() time.Time
	logger *slog.Logger
}

// RecorderOption is a function that configures a Recorder
type RecorderOption func(*Recorder)

// WithClock replaces time.Now
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a recorder over store.
func NewRecorder(store MemoryStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		now:    time.Now,
		logger: logging.WithComponent("memory"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StoreMemory persists content raised by role while working on task. The
// run ID from ctx, when present, is kept in the metadata.
func (r *Recorder) StoreMemory(ctx context.Context, role, task, content string, score float64) error {
	if r.store == nil {
		return fmt.Errorf("memory recorder has no store")
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("memory content cannot be empty")
	}

	now := r.now()
	mem := &Memory{
		ID:           GenerateMemoryID(),
		Role:         role,
		Task:         task,
		Content:      content,
		QualityScore: score,
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if id := runctx.RunID(ctx); id != "" {
		mem.Metadata["run_id"] = id
	}

	if err := r.store.AddMemory(ctx, mem); err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	r.logger.Debug("memory stored", "id", mem.ID, "role", role, "run_id", runctx.RunID(ctx))
	return nil
}

// Search returns memories matching query.
func (r *Recorder) Search(ctx context.Context, query string) ([]*Memory, error) {
	if r.store == nil {
		return nil, fmt.Errorf("memory recorder has no store")
	}
	return r.store.SearchMemory(ctx, query)
}
