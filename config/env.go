package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// envReader applies environment overrides and remembers values that fail
// to parse.
type envReader struct {
	errs []error
}

func (r *envReader) string(key string, dst *string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func (r *envReader) int(key string, dst *int) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (r *envReader) bool(key string, dst *bool) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
