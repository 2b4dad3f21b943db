package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/ai-conclave/memory"
)

// RedisStore implements MemoryStore using Redis. Each memory is a JSON
// string under prefix+"mem:"+ID, indexed by a sorted set scored by
// creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"` // 0 means no expiration
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "conclave:memory:",
	}
}

// NewRedisStore creates a new Redis-based memory store
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) memoryKey(id string) string {
	return s.prefix + "mem:" + id
}

// AddMemory stores a memory and indexes it
func (s *RedisStore) AddMemory(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	prepare(mem)

	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}

	key := s.memoryKey(mem.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(mem.CreatedAt.UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store memory in Redis: %w", err)
	}
	return nil
}

// SearchMemory returns the memories matching query, newest first. Expired
// entries are pruned from the index as they are found.
func (s *RedisStore) SearchMemory(ctx context.Context, query string) ([]*memory.Memory, error) {
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory keys: %w", err)
	}
	if len(keys) == 0 {
		return []*memory.Memory{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}

	memories := make([]*memory.Memory, 0, len(keys))
	var expired []any
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			expired = append(expired, keys[i])
			continue
		}
		var mem memory.Memory
		if err := json.Unmarshal([]byte(data), &mem); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory: %w", err)
		}
		if memory.Matches(&mem, query) {
			memories = append(memories, &mem)
		}
	}
	if len(expired) > 0 {
		s.client.ZRem(ctx, s.indexKey(), expired...)
	}
	return memories, nil
}

// GetMemoryByID retrieves a specific memory by ID
func (s *RedisStore) GetMemoryByID(ctx context.Context, id string) (*memory.Memory, error) {
	data, err := s.client.Get(ctx, s.memoryKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	var mem memory.Memory
	if err := json.Unmarshal([]byte(data), &mem); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory: %w", err)
	}
	return &mem, nil
}

// Clear removes all memories from Redis
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get memory keys: %w", err)
	}
	keys = append(keys, s.indexKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete memory keys: %w", err)
	}
	return nil
}

// Count returns the number of indexed memories
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return int(count), nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
