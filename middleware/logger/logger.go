package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
)

const startKey = "logger.started_at"

// RequestLogger logs outgoing completion requests
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware. A nil logger uses
// the shared "provider" component logger.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("provider")
	}
	return &RequestLogger{logger: logger}
}

// Name returns the middleware name
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute logs the request
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	ctx.Metadata[startKey] = time.Now()
	if ctx.Request != nil {
		attrs := append(metadataAttrs(ctx),
			"system_chars", len(ctx.Request.SystemPrompt),
			"user_chars", len(ctx.Request.UserPrompt),
			"max_tokens", ctx.Request.MaxTokens,
			"temperature", ctx.Request.Temperature,
		)
		m.logger.Debug("completion request", attrs...)
	}
	return next(ctx)
}

// ResponseLogger logs completions and provider errors
type ResponseLogger struct {
	logger *slog.Logger
}

// NewResponseLogger creates a response logging middleware
func NewResponseLogger(logger *slog.Logger) *ResponseLogger {
	if logger == nil {
		logger = logging.WithComponent("provider")
	}
	return &ResponseLogger{logger: logger}
}

// Name returns the middleware name
func (m *ResponseLogger) Name() string {
	return "ResponseLogger"
}

// Execute logs the response
func (m *ResponseLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	started := time.Now()
	if t, ok := ctx.Metadata[startKey].(time.Time); ok {
		started = t
	}
	err := next(ctx)

	attrs := append(metadataAttrs(ctx), "duration_ms", time.Since(started).Milliseconds())
	switch {
	case err != nil:
		m.logger.Warn("completion failed", append(attrs, "error", err)...)
	case ctx.Completion != nil:
		m.logger.Info("completion finished", append(attrs,
			"input_tokens", ctx.Completion.InputTokens,
			"output_tokens", ctx.Completion.OutputTokens,
		)...)
	}
	return err
}

func metadataAttrs(ctx *middleware.Context) []any {
	attrs := make([]any, 0, 12)
	for _, key := range []string{"run_id", "role", "action"} {
		if v, ok := ctx.Metadata[key]; ok {
			attrs = append(attrs, key, v)
		}
	}
	return attrs
}
