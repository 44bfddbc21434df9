// Package main implements the agentflow CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"agentflow/internal/agent"
	"agentflow/internal/classify"
	"agentflow/internal/config"
	"agentflow/internal/hybrid"
	"agentflow/internal/llm"
	"agentflow/internal/logging"
	"agentflow/internal/types"
	"agentflow/internal/vision"
	"agentflow/internal/web"
	"agentflow/internal/workflow"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	workspace  string
	configPath string
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
)

// errRunFailed signals a clean-but-unsuccessful outcome. It propagates
// through cobra as an ordinary error so deferred cleanup and log
// shutdown still run; main exits 1 without printing it.
var errRunFailed = errors.New("request did not succeed")

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "agentflow - request-to-workflow task orchestration",
	Long: `agentflow classifies a natural language request into an execution
shape, then runs it: a single LLM call for direct file creation, a
headless browse for pure web requests, a browse-and-synthesize pass for
web-to-file requests, and a planned multi-task workflow for everything
more complex.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
			workspace = wd
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath(workspace)
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Logging.DebugMode {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [request...]",
	Short: "Classify and execute a request end to end",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request := joinArgs(args)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, cleanup, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := engine.Run(ctx, request)
		if err != nil {
			return err
		}
		printOutcome(outcome)
		return outcomeErr(outcome)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [request...]",
	Short: "Plan a workflow without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, cleanup, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		wf, err := engine.Plan(ctx, joinArgs(args))
		if err != nil {
			return err
		}

		fmt.Printf("workflow %s (%d tasks)\n", wf.ID, len(wf.Tasks))
		for _, t := range wf.Tasks {
			fmt.Printf("  %-10s %-16s %s", t.State, t.Type, t.Description)
			if len(t.DependsOn) > 0 {
				fmt.Printf("  (after %v)", t.DependsOn)
			}
			fmt.Println()
		}
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [workflow-id]",
	Short: "Execute a planned or interrupted workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, cleanup, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := engine.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		printOutcome(outcome)
		return outcomeErr(outcome)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show the stored state of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		st, err := store.Status(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(st)
		}
		fmt.Printf("overall:     %s\n", st.Overall)
		fmt.Printf("progress:    %d%% (%d/%d completed)\n", st.ProgressPct, st.Completed, st.Total)
		fmt.Printf("in progress: %d  blocked: %d  failed: %d  cancelled: %d\n",
			st.InProgress, st.Blocked, st.Failed, st.Cancelled)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			st, err := store.Status(id)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("%s  %-10s %d/%d\n", id, st.Overall, st.Completed, st.Total)
		}
		return nil
	},
}

// buildEngine wires the full collaborator graph. The returned cleanup
// closes the browser session and the workflow index.
func buildEngine(ctx context.Context) (*agent.Engine, func(), error) {
	llmClient, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.DefaultModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	visionClient, err := vision.NewGeminiAnalyzer(ctx, cfg.APIKey, cfg.DefaultModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	browser := web.NewBrowser(web.DefaultConfig(), logger.Named("web"))
	files := &types.OSFileStore{}

	signals := classify.DefaultSignals()
	if cfg.SignalsFile != "" {
		signals, err = classify.LoadSignals(cfg.SignalsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load signals: %w", err)
		}
	}
	classifier := classify.NewClassifier(signals)

	var watcher *classify.SignalsWatcher
	if cfg.SignalsFile != "" {
		watcher, err = classify.NewSignalsWatcher(cfg.SignalsFile, classifier)
		if err != nil {
			logger.Warn("signals watcher unavailable", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("signals watcher failed to start", zap.Error(err))
			watcher = nil
		}
	}

	index, err := workflow.OpenIndex(cfg.StoreRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workflow index: %w", err)
	}
	store, err := workflow.NewStore(cfg.StoreRoot, index)
	if err != nil {
		index.Close()
		return nil, nil, fmt.Errorf("failed to open workflow store: %w", err)
	}

	dispatcher := workflow.NewDispatcher(llmClient, browser, visionClient, files, cfg.DocumentsDir)
	planner := workflow.NewPlanner(llmClient, store)
	executor := workflow.NewExecutor(store, dispatcher, cfg.MaxParallelTasks, cfg.TaskTimeout())
	hybridRunner := hybrid.NewRunner(llmClient, browser, files, cfg.DocumentsDir)

	engine := agent.NewEngine(classifier, dispatcher, hybridRunner, planner, store, executor)
	cleanup := func() {
		if watcher != nil {
			watcher.Stop()
		}
		if err := browser.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
		index.Close()
	}
	return engine, cleanup, nil
}

// openStore opens just the persistence layer for read-side commands.
func openStore() (*workflow.Store, error) {
	index, err := workflow.OpenIndex(cfg.StoreRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open workflow index: %w", err)
	}
	store, err := workflow.NewStore(cfg.StoreRoot, index)
	if err != nil {
		index.Close()
		return nil, err
	}
	return store, nil
}

func printOutcome(out *agent.Outcome) {
	if jsonOutput {
		_ = printJSON(out)
		return
	}
	status := "OK"
	if !out.Success {
		status = "FAILED"
	}
	fmt.Printf("[%s] %s: %s\n", status, out.Shape, out.Message)
	if out.WorkflowID != "" {
		fmt.Printf("workflow: %s\n", out.WorkflowID)
	}
	if len(out.Artifacts) > 0 {
		keys := make([]string, 0, len(out.Artifacts))
		for k := range out.Artifacts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, out.Artifacts[k])
		}
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

// outcomeErr maps an unsuccessful outcome to the exit-code sentinel.
func outcomeErr(out *agent.Outcome) error {
	if out.Success {
		return nil
	}
	return errRunFailed
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: <workspace>/.agentflow/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit results as JSON")
	rootCmd.AddCommand(runCmd, planCmd, resumeCmd, statusCmd, listCmd)
}

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	logging.CloseAll()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
