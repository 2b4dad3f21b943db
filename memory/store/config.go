package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/memory"
)

// Supported backends.
const (
	BackendInMemory = "inmemory"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

var timeNow = time.Now

func notFound(id string) error {
	return fmt.Errorf("memory %s: %w", id, errorspkg.ErrNotFound)
}

// Config selects and configures a memory backend
type Config struct {
	Backend  string          `yaml:"backend"`
	Redis    *RedisConfig    `yaml:"redis"`
	Mongo    *MongoConfig    `yaml:"mongo"`
	Postgres *PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns an in-memory configuration with defaults for every
// other backend filled in.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendInMemory,
		Redis:    DefaultRedisConfig(),
		Mongo:    DefaultMongoConfig(),
		Postgres: DefaultPostgresConfig(),
	}
}

// CloseFunc releases a backend's connections.
type CloseFunc func(context.Context) error

// Open connects to the configured backend. The returned CloseFunc is never nil.
func Open(ctx context.Context, cfg Config) (memory.MemoryStore, CloseFunc, error) {
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendInMemory:
		return NewInMemoryStore(), noop, nil
	case BackendRedis:
		s := NewRedisStore(cfg.Redis)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, noop, fmt.Errorf("failed to ping Redis: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case BackendMongo:
		s, err := NewMongoStore(ctx, cfg.Mongo)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown memory backend %q: %w", cfg.Backend, errorspkg.ErrInvalidInput)
	}
}
