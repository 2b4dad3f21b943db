package tracing

import (
	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"github.com/sweetpotato0/ai-conclave/provider"
	"go.opentelemetry.io/otel/attribute"
)

// Tracer opens one span per completion call
type Tracer struct {
	providerName string
}

// NewTracer creates a tracing middleware
func NewTracer(providerName string) *Tracer {
	return &Tracer{providerName: providerName}
}

// Name returns the middleware name
func (m *Tracer) Name() string {
	return "Tracer"
}

// Execute wraps the rest of the chain in a span. The span context is handed
// on to the provider through the request context.
func (m *Tracer) Execute(ctx *middleware.Context, next middleware.Handler) error {
	attrs := []attribute.KeyValue{attribute.String("llm.provider", m.providerName)}
	for _, key := range []string{"run_id", "role", "action"} {
		if v, ok := ctx.Metadata[key].(string); ok {
			attrs = append(attrs, attribute.String("conclave."+key, v))
		}
	}
	if ctx.Request != nil {
		attrs = append(attrs,
			attribute.Int("llm.request.max_tokens", ctx.Request.MaxTokens),
			attribute.Float64("llm.request.temperature", ctx.Request.Temperature),
		)
	}

	spanCtx, span := telemetry.Start(ctx.Context(), "provider.complete", attrs...)
	traced := ctx.WithContext(spanCtx)
	err := next(traced)
	ctx.Completion = traced.Completion
	ctx.Error = traced.Error

	if err == nil && ctx.Completion != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.input_tokens", ctx.Completion.InputTokens),
			attribute.Int("llm.usage.output_tokens", ctx.Completion.OutputTokens),
		)
	}
	if kind := provider.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("llm.error.kind", string(kind)))
	}
	telemetry.End(span, err)
	return err
}
