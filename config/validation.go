package config

import (
	"fmt"
	"strings"

	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/memory/store"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// RequireNonNegative validates that an integer field is 0 or more
func (v *Validator) RequireNonNegative(field string, value int) *Validator {
	if value < 0 {
		return v.add(field, "value must not be negative, got %d", value)
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error or nil if no errors. The error wraps
// errors.ErrInvalidInput.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for _, e := range v.errors {
		fmt.Fprintf(&b, "  - %s: %s\n", e.Field, e.Message)
	}
	return fmt.Errorf("%w: %s", errorspkg.ErrInvalidInput, b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// validateMemory checks the section of the selected backend only.
func validateMemory(v *Validator, cfg store.Config) {
	v.ValidateOneOf("memory.backend", cfg.Backend,
		store.BackendInMemory, store.BackendRedis, store.BackendMongo, store.BackendPostgres)

	switch cfg.Backend {
	case store.BackendRedis:
		if cfg.Redis == nil {
			v.add("memory.redis", "section required for the redis backend")
			return
		}
		v.RequireNonEmpty("memory.redis.addr", cfg.Redis.Addr)
		v.ValidateDBNumber("memory.redis.db", cfg.Redis.DB)
		v.RequireNonEmpty("memory.redis.prefix", cfg.Redis.Prefix)
	case store.BackendMongo:
		if cfg.Mongo == nil {
			v.add("memory.mongo", "section required for the mongo backend")
			return
		}
		v.RequireNonEmpty("memory.mongo.uri", cfg.Mongo.URI)
		v.RequireNonEmpty("memory.mongo.database", cfg.Mongo.Database)
		v.RequireNonEmpty("memory.mongo.collection", cfg.Mongo.Collection)
	case store.BackendPostgres:
		if cfg.Postgres == nil {
			v.add("memory.postgres", "section required for the postgres backend")
			return
		}
		v.RequireNonEmpty("memory.postgres.host", cfg.Postgres.Host)
		v.ValidatePort("memory.postgres.port", cfg.Postgres.Port)
		v.RequireNonEmpty("memory.postgres.user", cfg.Postgres.User)
		v.RequireNonEmpty("memory.postgres.dbname", cfg.Postgres.DBName)
		v.ValidateOneOf("memory.postgres.sslmode", cfg.Postgres.SSLMode, "disable", "require", "verify-ca", "verify-full")
	}
}
