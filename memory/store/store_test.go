package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/memory"
)

// exerciseStore runs the behaviour every backend shares against an empty store.
func exerciseStore(t *testing.T, s memory.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	older := &memory.Memory{Role: "critic", Task: "add caching", Content: "Reuse the search cache", CreatedAt: base}
	newer := &memory.Memory{Role: "critic", Task: "rate limiting", Content: "Share the token bucket", CreatedAt: base.Add(time.Minute)}
	for _, m := range []*memory.Memory{older, newer} {
		if err := s.AddMemory(ctx, m); err != nil {
			t.Fatalf("AddMemory failed: %v", err)
		}
		if m.ID == "" || m.UpdatedAt.IsZero() {
			t.Fatalf("memory not prepared: %+v", m)
		}
	}

	all, err := s.SearchMemory(ctx, "")
	if err != nil {
		t.Fatalf("SearchMemory failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID {
		t.Fatalf("expected both memories newest first, got %d", len(all))
	}

	found, err := s.SearchMemory(ctx, "CACHE")
	if err != nil {
		t.Fatalf("SearchMemory failed: %v", err)
	}
	if len(found) != 1 || found[0].Task != "add caching" {
		t.Errorf("expected the caching memory, got %+v", found)
	}

	byRole, _ := s.SearchMemory(ctx, "critic")
	if len(byRole) != 2 {
		t.Errorf("expected role match for both memories, got %d", len(byRole))
	}

	literal, _ := s.SearchMemory(ctx, "c.che")
	if len(literal) != 0 {
		t.Errorf("expected query to be matched literally, got %d", len(literal))
	}

	older.Content = "Reuse the search cache for embeddings"
	if err := s.AddMemory(ctx, older); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	all, _ = s.SearchMemory(ctx, "")
	if len(all) != 2 {
		t.Errorf("expected upsert to keep two memories, got %d", len(all))
	}

	if err := s.AddMemory(ctx, nil); err == nil {
		t.Error("expected error for nil memory")
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	exerciseStore(t, s)

	if s.Count() != 2 {
		t.Errorf("expected 2 memories, got %d", s.Count())
	}
	if err := s.Clear(); err != nil || s.Count() != 0 {
		t.Errorf("expected store to be cleared, count %d (%v)", s.Count(), err)
	}
}

func TestOpenInMemoryByDefault(t *testing.T) {
	s, closeFn, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn(context.Background())
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("expected in-memory store, got %T", s)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, closeFn, err := Open(context.Background(), Config{Backend: "etcd"})
	if !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if closeFn == nil {
		t.Error("close func should never be nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendInMemory || cfg.Redis == nil || cfg.Mongo == nil || cfg.Postgres == nil {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	dsn := cfg.Postgres.DSN()
	if dsn != "host=localhost port=5432 user=postgres dbname=conclave sslmode=disable" {
		t.Errorf("unexpected DSN %q", dsn)
	}
}

// The backends below need a live server and are skipped unless configured.

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis store tests")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	s := NewRedisStore(&RedisConfig{Addr: addr, DB: db, Prefix: "conclave:test:" + memory.GenerateMemoryID() + ":"})
	defer s.Close()
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("failed to connect to Redis: %v", err)
	}
	defer s.Clear(ctx)

	exerciseStore(t, s)

	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Errorf("expected 2 memories, got %d (%v)", n, err)
	}
	if _, err := s.GetMemoryByID(ctx, "missing"); !errors.Is(err, errorspkg.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB store tests")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, &MongoConfig{URI: uri, Database: "conclave_test", Collection: "memories_test"})
	if err != nil {
		t.Skipf("failed to connect to MongoDB: %v", err)
	}
	defer s.Close(ctx)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	defer s.Clear(ctx)

	exerciseStore(t, s)

	if _, err := s.GetMemoryByID(ctx, "missing"); !errors.Is(err, errorspkg.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteMemory(ctx, "missing"); !errors.Is(err, errorspkg.ErrNotFound) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("POSTGRES_HOST not set, skipping PostgreSQL store tests")
	}
	cfg := DefaultPostgresConfig()
	cfg.Host = host
	cfg.Password = os.Getenv("POSTGRES_PASSWORD")
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		cfg.DBName = db
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, cfg)
	if err != nil {
		t.Skipf("failed to connect to PostgreSQL: %v", err)
	}
	defer s.Close()
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	defer s.Clear(ctx)

	exerciseStore(t, s)

	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Errorf("expected 2 memories, got %d (%v)", n, err)
	}
	if _, err := s.GetMemoryByID(ctx, "missing"); !errors.Is(err, errorspkg.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
