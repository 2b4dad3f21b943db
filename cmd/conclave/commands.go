package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweetpotato0/ai-conclave/config"
	errorspkg "github.com/sweetpotato0/ai-conclave/errors"
	"github.com/sweetpotato0/ai-conclave/mcp"
	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/runner"
	"github.com/sweetpotato0/ai-conclave/workflow"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	configPath string
	asJSON     bool
}

func newRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "conclave",
		Short:         "Multi-persona deliberation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print full JSON results")

	root.AddCommand(
		runCmd(opts),
		reviewCmd(opts),
		pipelineCmd(opts),
		invokeCmd(opts),
		batchCmd(opts),
		serveMCPCmd(opts),
		memoriesCmd(opts),
	)
	return root
}

// withApp loads config, builds the app and always closes it.
func withApp(cmd *cobra.Command, opts *rootOptions, withProvider bool, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, withProvider)
	if err != nil {
		return err
	}
	defer func() {
		// a cancelled command context must not skip flushing
		if cerr := a.close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func taskArg(args []string) (string, error) {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return "", fmt.Errorf("a task is required: %w", errorspkg.ErrInvalidInput)
	}
	return task, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Deliberate on a task with all four personas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := taskArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				wf, err := a.newWorkflow()
				if err != nil {
					return err
				}
				res, err := wf.Execute(ctx, task)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printResult(cmd.OutOrStdout(), res)
				if usage, ok := a.providerUsage(); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "provider: %d calls, %d failed, %d tokens\n",
						usage.Calls, usage.Failures, usage.InputTokens+usage.OutputTokens)
				}
				return nil
			})
		},
	}
}

func reviewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "review <task>",
		Short: "Plan a task and have the critic review it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := taskArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				r, err := a.orch.QuickReview(ctx, task)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Plan:\n%s\n\nReview:\n%s\n\n%d calls, %d tokens, %s\n",
					r.Plan.Response.Recommendation, r.Evaluation.Response.Recommendation,
					r.Usage.Calls, r.Usage.Tokens(), r.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
}

func pipelineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline <task>",
		Short: "Blueprint, implement and diagnose a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := taskArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				r, err := a.orch.RunPipeline(ctx, task)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), r)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Blueprint:\n%s\n\nImplementation:\n%s\n", r.Blueprint.Response.Recommendation,
					r.Implementation.Response.Recommendation)
				if code := r.Implementation.Response.CodeOutput; code != "" {
					fmt.Fprintf(w, "\n%s\n", code)
				}
				if r.Diagnosis != nil {
					fmt.Fprintf(w, "\nDiagnosis:\n%s\n", r.Diagnosis.Response.Recommendation)
				}
				if r.MetaAnalysis != nil {
					fmt.Fprintf(w, "\nMeta-analysis:\n%s\n", r.MetaAnalysis.Response.Recommendation)
				}
				fmt.Fprintf(w, "\n%d calls, %d tokens, %s\n", r.Usage.Calls, r.Usage.Tokens(), r.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
}

func invokeCmd(opts *rootOptions) *cobra.Command {
	var roleName string
	cmd := &cobra.Command{
		Use:   "invoke <prompt>",
		Short: "Call a single persona",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := persona.ParseRole(roleName)
			if err != nil {
				return err
			}
			prompt, err := taskArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				res, err := a.orch.InvokeAgent(ctx, role, prompt)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "[%s] confidence %.2f, score %.2f\n%s\n", res.Role,
					res.Response.Confidence, res.Metrics.Score(), res.Response.Recommendation)
				for _, warning := range res.Response.Warnings {
					fmt.Fprintf(w, "warning: %s\n", warning)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&roleName, "role", "r", string(persona.RoleCritic), "Persona: planner, fixer, implementer or critic")
	return cmd
}

// batchFile is the YAML or JSON document read by the batch command.
type batchFile struct {
	Tasks []runner.Task `yaml:"tasks"`
}

func readBatch(path string) ([]runner.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc batchFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	tasks := make([]runner.Task, 0, len(doc.Tasks))
	for i, t := range doc.Tasks {
		if strings.TrimSpace(t.Input) == "" {
			return nil, fmt.Errorf("task %d has no text: %w", i+1, errorspkg.ErrInvalidInput)
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("task-%d", i+1)
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%s lists no tasks: %w", path, errorspkg.ErrInvalidInput)
	}
	return tasks, nil
}

func batchCmd(opts *rootOptions) *cobra.Command {
	var (
		sequential  bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Deliberate on every task in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := readBatch(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				if concurrency <= 0 {
					concurrency = a.cfg.Runner.Concurrency
				}
				r := runner.New(a.newWorkflow, runner.WithConcurrency(concurrency))

				var (
					results []*runner.Result
					runErr  error
				)
				if sequential {
					results, runErr = r.RunSequential(ctx, tasks)
				} else {
					results = r.RunParallel(ctx, tasks)
				}

				if opts.asJSON {
					if err := writeJSON(cmd.OutOrStdout(), batchReport(results)); err != nil {
						return err
					}
				} else {
					printBatch(cmd.OutOrStdout(), results)
				}
				if runErr != nil {
					return runErr
				}
				return batchError(results)
			})
		},
	}
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Run tasks one at a time and stop at the first failure")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel deliberations (defaults to runner.concurrency)")
	return cmd
}

type batchEntry struct {
	TaskID string           `json:"task_id"`
	Error  string           `json:"error,omitempty"`
	Result *workflow.Result `json:"result,omitempty"`
}

func batchReport(results []*runner.Result) []batchEntry {
	out := make([]batchEntry, 0, len(results))
	for _, r := range results {
		e := batchEntry{TaskID: r.TaskID, Result: r.Output}
		if r.Error != nil {
			e.Error = r.Error.Error()
		}
		out = append(out, e)
	}
	return out
}

func batchError(results []*runner.Result) error {
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(results))
	}
	return nil
}

func serveMCPCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the deliberation tools over MCP (stdio by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				srv, err := mcp.NewServer(mcp.Deps{
					NewWorkflow:  a.newWorkflow,
					Orchestrator: a.orch,
					Memory:       a.store,
				})
				if err != nil {
					return err
				}
				if addr == "" {
					return srv.RunStdio(ctx)
				}
				return serveHTTP(ctx, a, addr, srv.HTTPHandler())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "Serve the streamable HTTP transport on this address instead of stdio")
	return cmd
}

func serveHTTP(ctx context.Context, a *app, addr string, h http.Handler) error {
	httpSrv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving MCP over HTTP", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func memoriesCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "memories [query]",
		Short: "Search opportunities recorded by earlier deliberations",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				found, err := a.store.SearchMemory(ctx, query)
				if err != nil {
					return err
				}
				if limit > 0 && len(found) > limit {
					found = found[:limit]
				}
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), found)
				}
				for _, m := range found {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.2f\t%s\n",
						m.CreatedAt.Format(time.RFC3339), m.Role, m.QualityScore, m.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum memories to show (0 for all)")
	return cmd
}
