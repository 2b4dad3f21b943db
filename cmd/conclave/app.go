package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/ai-conclave/config"
	contribprovider "github.com/sweetpotato0/ai-conclave/contrib/provider"
	"github.com/sweetpotato0/ai-conclave/evaluator"
	"github.com/sweetpotato0/ai-conclave/memory"
	"github.com/sweetpotato0/ai-conclave/memory/store"
	"github.com/sweetpotato0/ai-conclave/middleware"
	"github.com/sweetpotato0/ai-conclave/middleware/enricher"
	"github.com/sweetpotato0/ai-conclave/middleware/errorhandler"
	"github.com/sweetpotato0/ai-conclave/middleware/limiter"
	"github.com/sweetpotato0/ai-conclave/middleware/logger"
	"github.com/sweetpotato0/ai-conclave/middleware/tracing"
	"github.com/sweetpotato0/ai-conclave/middleware/validator"
	"github.com/sweetpotato0/ai-conclave/orchestrator"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/pkg/logging"
	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"github.com/sweetpotato0/ai-conclave/prompt"
	"github.com/sweetpotato0/ai-conclave/reasoning"
	"github.com/sweetpotato0/ai-conclave/runner"
	"github.com/sweetpotato0/ai-conclave/workflow"
)

// maxPromptChars rejects runaway prompts before they reach the provider.
const maxPromptChars = 200_000

// app holds the collaborators one CLI invocation needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	prompts *prompt.Manager
	counter *middleware.CallCounter
	team    *persona.Team
	orch    *orchestrator.Orchestrator
	store   memory.MemoryStore

	closers []func(context.Context) error
}

// newApp wires storage and, when withProvider is set, the provider, the
// middleware chain and the persona team.
func newApp(ctx context.Context, cfg *config.Config, withProvider bool) (*app, error) {
	prompts, err := cfg.PromptLibrary()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logging.WithComponent("cli"),
		prompts: prompts,
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		Disable:     !cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	st, closeStore, err := store.Open(ctx, cfg.Memory)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	if !withProvider {
		return a, nil
	}
	if err := cfg.RequireCredentials(); err != nil {
		a.close(ctx)
		return nil, err
	}

	base, closeProvider, err := contribprovider.Open(contribprovider.Settings{
		Name:        cfg.Provider.Name,
		Model:       cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		Tokenizer:   cfg.Provider.Tokenizer,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeProvider() })

	a.counter = middleware.NewCallCounter()
	p := a.chain().Wrap(base)

	engine := reasoning.NewEngine(p,
		reasoning.WithMaxTokens(cfg.Provider.MaxTokens),
		reasoning.WithTemperature(cfg.Provider.Temperature),
		reasoning.WithPrompts(a.prompts),
	)
	eval := evaluator.New(
		evaluator.WithLevel(cfg.Level()),
		evaluator.WithMinSuccessRate(cfg.Evaluation.MinSuccessRate),
		evaluator.WithPricing(cfg.Pricing()),
	)
	a.team, err = persona.NewTeam(persona.Deps{Engine: engine, Evaluator: eval, Prompts: a.prompts},
		persona.WithMode(cfg.Mode()),
		persona.WithSelfCritique(cfg.Reasoning.SelfCritique),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.orch, err = orchestrator.New(a.team,
		orchestrator.WithMetaAnalysis(cfg.Workflow.MetaAnalysis),
		orchestrator.WithPrompts(a.prompts),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// chain builds the provider middleware stack, outermost first.
func (a *app) chain() *middleware.MiddlewareChain {
	name := a.cfg.Provider.Name
	mwLogger := logging.WithComponent("provider")

	chain := middleware.NewChain(
		enricher.NewContextEnricher(enricher.RunMetadata()),
		logger.NewRequestLogger(mwLogger),
		logger.NewResponseLogger(mwLogger),
		tracing.NewTracer(name),
		a.counter,
		limiter.NewCallBudget(a.cfg.Provider.MaxCalls),
		validator.NewInputValidator(validator.MaxPromptChars(maxPromptChars)),
	)
	// Injected prompts only abort at the enforcing levels; below that the
	// evaluator reports them.
	if level := a.cfg.Level(); level == evaluator.LevelHigh || level == evaluator.LevelStrict {
		chain.Add(validator.NewInjectionGuard())
	}
	chain.Add(validator.NewResponseFilter(validator.TrimResponse()))
	chain.Add(errorhandler.NewErrorHandler(errorhandler.Classify(name)))
	return chain
}

// newWorkflow builds a fresh workflow over the shared team.
func (a *app) newWorkflow() (runner.Deliberator, error) {
	wf, err := workflow.New(a.team,
		workflow.WithChangeThreshold(a.cfg.Workflow.ChangeThreshold),
		workflow.WithSimilarityThreshold(a.cfg.Workflow.SimilarityThreshold),
		workflow.WithMemory(memory.NewRecorder(a.store)),
		workflow.WithPrompts(a.prompts),
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// providerUsage reports what the call counter saw, if a provider was wired.
func (a *app) providerUsage() (middleware.Usage, bool) {
	if a.counter == nil {
		return middleware.Usage{}, false
	}
	return a.counter.Usage(), true
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
