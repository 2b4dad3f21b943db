package enricher

import (
	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/runctx"
)

// EnricherFunc enriches the context
type EnricherFunc func(*middleware.Context) error

// ContextEnricher adds additional data to the middleware context
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// Name returns the middleware name
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute enriches the context
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.enricher != nil {
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}

// RunMetadata copies the run ID, role and action carried by the request
// context into Metadata so later middlewares can log and tag them.
func RunMetadata() EnricherFunc {
	return func(ctx *middleware.Context) error {
		c := ctx.Context()
		if v := runctx.RunID(c); v != "" {
			ctx.Metadata["run_id"] = v
		}
		if v := runctx.Role(c); v != "" {
			ctx.Metadata["role"] = v
		}
		if v := runctx.Action(c); v != "" {
			ctx.Metadata["action"] = v
		}
		return nil
	}
}
