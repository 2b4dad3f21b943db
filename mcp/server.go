// Package mcp exposes the deliberation workflow, the orchestrator and the
// memory store as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/memory"
	"github.com/sweetpotato0/ai-conclave/orchestrator"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/runner"
)

// Tool names.
const (
	ToolDeliberate     = "deliberate"
	ToolInvokePersona  = "invoke_persona"
	ToolQuickReview    = "quick_review"
	ToolRunPipeline    = "run_pipeline"
	ToolSearchMemories = "search_memories"
)

// Deps are the services behind the tools. Memory may be nil, in which case
// search_memories is not registered.
type Deps struct {
	NewWorkflow  runner.Factory
	Orchestrator *orchestrator.Orchestrator
	Memory       memory.MemoryStore
}

// ServerInfo describes the server advertised to clients.
type ServerInfo struct {
	Name    string
	Version string
}

// Option configures a Server
type Option func(*Server)

// WithServerInfo overrides the advertised implementation metadata.
func WithServerInfo(info ServerInfo) Option {
	return func(s *Server) {
		if info.Name != "" {
			s.info.Name = info.Name
		}
		if info.Version != "" {
			s.info.Version = info.Version
		}
	}
}

// WithLogger sets the server logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wraps the SDK server with the conclave tools registered.
type Server struct {
	deps   Deps
	info   sdkmcp.Implementation
	logger *slog.Logger
	sdk    *sdkmcp.Server
}

// NewServer registers the tools over deps.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if deps.NewWorkflow == nil || deps.Orchestrator == nil {
		return nil, fmt.Errorf("mcp: workflow factory and orchestrator are required: %w", errorspkg.ErrInvalidInput)
	}
	s := &Server{
		deps:   deps,
		info:   sdkmcp.Implementation{Name: "ai-conclave", Version: "0.1.0"},
		logger: logging.WithComponent("mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sdk = sdkmcp.NewServer(&s.info, nil)
	s.addDeliberate()
	s.addInvokePersona()
	s.addQuickReview()
	s.addRunPipeline()
	if deps.Memory != nil {
		s.addSearchMemories()
	}
	return s, nil
}

// SDK returns the underlying SDK server.
func (s *Server) SDK() *sdkmcp.Server {
	return s.sdk
}

// RunStdio serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.sdk.Run(ctx, &sdkmcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return s.sdk }, nil)
}

func (s *Server) addDeliberate() {
	type args struct {
		Task string `json:"task" jsonschema:"Open-ended engineering task to deliberate on"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolDeliberate,
		Description: "Run the three-stage deliberation with all four personas and return the signed-off result",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		task, err := required("task", a.Task)
		if err != nil {
			return nil, nil, err
		}
		wf, err := s.deps.NewWorkflow()
		if err != nil {
			return nil, nil, fmt.Errorf("build workflow: %w", err)
		}
		res, err := wf.Execute(ctx, task)
		if err != nil {
			s.logger.Warn("deliberation failed", "error", err)
			return nil, nil, err
		}
		return jsonResult(res)
	})
}

func (s *Server) addInvokePersona() {
	type args struct {
		Role   string `json:"role" jsonschema:"Persona to call: planner, fixer, implementer or critic"`
		Prompt string `json:"prompt" jsonschema:"Prompt for the persona"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolInvokePersona,
		Description: "Call a single persona and return its structured response and quality metrics",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		role, err := persona.ParseRole(a.Role)
		if err != nil {
			return nil, nil, err
		}
		prompt, err := required("prompt", a.Prompt)
		if err != nil {
			return nil, nil, err
		}
		res, err := s.deps.Orchestrator.InvokeAgent(ctx, role, prompt)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(res)
	})
}

func (s *Server) addQuickReview() {
	type args struct {
		Task string `json:"task" jsonschema:"Task to plan and review"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolQuickReview,
		Description: "Plan a task with the planner and have the critic review it",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		task, err := required("task", a.Task)
		if err != nil {
			return nil, nil, err
		}
		res, err := s.deps.Orchestrator.QuickReview(ctx, task)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(res)
	})
}

func (s *Server) addRunPipeline() {
	type args struct {
		Task string `json:"task" jsonschema:"Task to take from blueprint to implementation"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolRunPipeline,
		Description: "Blueprint, implement and, when validations fail, diagnose a task",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		task, err := required("task", a.Task)
		if err != nil {
			return nil, nil, err
		}
		res, err := s.deps.Orchestrator.RunPipeline(ctx, task)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(res)
	})
}

func (s *Server) addSearchMemories() {
	type args struct {
		Query string `json:"query,omitempty" jsonschema:"Case-insensitive text or role to match; empty lists everything"`
		Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolSearchMemories,
		Description: "Search improvement opportunities recorded by earlier deliberations",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		found, err := s.deps.Memory.SearchMemory(ctx, a.Query)
		if err != nil {
			return nil, nil, err
		}
		if a.Limit > 0 && len(found) > a.Limit {
			found = found[:a.Limit]
		}
		return jsonResult(found)
	})
}

func required(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required: %w", field, errorspkg.ErrInvalidInput)
	}
	return value, nil
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
