package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/ai-conclave/memory"
)

// PostgresStore implements MemoryStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "conclave",
		SSLMode: "disable",
	}
}

// DSN renders the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("dbname=%s", c.DBName),
		fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	return strings.Join(parts, " ")
}

// NewPostgresStore connects to PostgreSQL and creates the memories table
// when missing
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS conclave_memories (
		id VARCHAR(255) PRIMARY KEY,
		role VARCHAR(64) NOT NULL,
		task TEXT NOT NULL,
		content TEXT NOT NULL,
		quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conclave_memories_created_at ON conclave_memories(created_at);
	CREATE INDEX IF NOT EXISTS idx_conclave_memories_role ON conclave_memories(role);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// AddMemory upserts a memory
func (s *PostgresStore) AddMemory(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	prepare(mem)

	metadataJSON, err := json.Marshal(mem.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO conclave_memories (id, role, task, content, quality_score, metadata, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		quality_score = EXCLUDED.quality_score,
		metadata = EXCLUDED.metadata,
		updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		mem.ID, mem.Role, mem.Task, mem.Content, mem.QualityScore,
		string(metadataJSON), mem.CreatedAt, mem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add memory to PostgreSQL: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, role, task, content, quality_score, metadata, created_at, updated_at FROM conclave_memories`

// SearchMemory returns the memories matching query, newest first
func (s *PostgresStore) SearchMemory(ctx context.Context, query string) ([]*memory.Memory, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(query) == "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			selectColumns+` WHERE content ILIKE $1 OR task ILIKE $1 OR role ILIKE $2 ORDER BY created_at DESC`,
			"%"+escapeLike(strings.TrimSpace(query))+"%", strings.TrimSpace(query))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	memories := make([]*memory.Memory, 0)
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*memory.Memory, error) {
	mem := &memory.Memory{}
	var metadataJSON sql.NullString
	if err := row.Scan(&mem.ID, &mem.Role, &mem.Task, &mem.Content, &mem.QualityScore,
		&metadataJSON, &mem.CreatedAt, &mem.UpdatedAt); err != nil {
		return nil, err
	}
	mem.Metadata = make(map[string]any)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &mem.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return mem, nil
}

// GetMemoryByID retrieves a specific memory by ID
func (s *PostgresStore) GetMemoryByID(ctx context.Context, id string) (*memory.Memory, error) {
	mem, err := scanMemory(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return mem, nil
}

// DeleteMemory deletes a memory by ID
func (s *PostgresStore) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conclave_memories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// Clear removes all memories
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conclave_memories"); err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

// Count returns the number of memories
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conclave_memories").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
