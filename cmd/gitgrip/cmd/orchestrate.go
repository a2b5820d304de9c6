package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/commander"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/config"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/telemetry"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/workspace"
)

var (
	orchestrateBranch     string
	orchestrateBaseBranch string
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate [task]",
	Short: "Spawn one isolated worker to run a task and stream its lifecycle",
	Long: `orchestrate drives the commander side of the orchestration subsystem
directly from the CLI: it creates an isolated workspace, launches this same
executable in --child-mode against it, and streams the worker's lifecycle
events until the task reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: runOrchestrate,
}

func init() {
	rootCmd.AddCommand(orchestrateCmd)
	orchestrateCmd.Flags().StringVar(&orchestrateBranch, "branch", "",
		"branch name for the worker's workspace (default: generated from the worker id)")
	orchestrateCmd.Flags().StringVar(&orchestrateBaseBranch, "base-branch", "",
		"base branch to create the worker's branch from (default: current branch)")
}

func runOrchestrate(_ *cobra.Command, args []string) error {
	task := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})

	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving repository root: %w", err)
	}
	isolator, err := workspace.DetectIsolator(repoRoot,
		func(root string) (workspace.Isolator, error) {
			return workspace.NewSingleRepoIsolatorAt(root, logger)
		},
		func(main string) (workspace.Isolator, error) {
			return workspace.NewMultiRepoIsolatorAt(main, logger)
		},
	)
	if err != nil {
		return fmt.Errorf("detecting workspace isolator: %w", err)
	}
	if multi, ok := isolator.(*workspace.MultiRepoIsolator); ok {
		if rw, werr := multi.Watch(); werr != nil {
			logger.Warn("registry watch unavailable", "error", werr)
		} else {
			defer rw.Close()
			go watchRegistryChanges(ctx, rw, logger)
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	socketDir := cfg.Orchestrator.SocketDir
	if socketDir == "" {
		socketDir, err = os.MkdirTemp("", "gitgrip-orchestrate-")
		if err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
		defer os.RemoveAll(socketDir)
	}

	restartPolicy := core.RestartPolicy{
		Disabled:    cfg.Orchestrator.RestartPolicy.Disabled,
		MaxRestarts: cfg.Orchestrator.RestartPolicy.MaxRestarts,
	}
	c := commander.New(commander.Config{
		MaxWorkers:    cfg.Orchestrator.MaxWorkers,
		CleanupOnExit: cfg.Orchestrator.CleanupOnExit,
		RestartPolicy: restartPolicy,
		SocketDir:     socketDir,
		ChildBinary:   exe,
		Isolator:      isolator,
		Log:           logger,
	})
	if err := c.Start(); err != nil {
		return fmt.Errorf("starting commander: %w", err)
	}
	go func() {
		if err := c.ProcessMessages(ctx); err != nil {
			logger.Warn("commander message loop stopped", "error", err)
		}
	}()

	workerID := uuid.NewString()
	branch := orchestrateBranch
	if branch == "" {
		branch = "gitgrip/" + workerID[:8]
	}

	workerCfg := core.WorkerConfig{
		ID:          workerID,
		Branch:      branch,
		Task:        task,
		AutoApprove: []string{"read_file", "write_file", "run_shell"},
	}
	if _, err := c.SpawnWorker(ctx, workerCfg, orchestrateBaseBranch); err != nil {
		_ = c.Shutdown(context.Background())
		return fmt.Errorf("spawning worker: %w", err)
	}

	startedAt := time.Now().UTC()
	exitCode, result := watchOrchestrationEvents(ctx, c, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.Warn("commander shutdown", "error", err)
	}

	if cfg.Trace.Mode != core.TraceModeOff {
		if err := recordOrchestrationTrace(cfg, workerID, task, startedAt, result); err != nil {
			logger.Warn("writing trace manifest", "error", err)
		}
	}
	if err := recordOrchestrationTelemetry(cfg, workerID, branch, task, startedAt, result); err != nil {
		logger.Warn("recording telemetry", "error", err)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// recordOrchestrationTrace writes a run.json manifest for a single
// orchestrate invocation, in the shape the trace command reads. result is
// nil when the worker never reached a Complete status (failed, cancelled,
// disconnected, or the run was interrupted).
func recordOrchestrationTrace(cfg *config.Config, workerID, task string, startedAt time.Time, result *core.WorkerResult) error {
	gitCommit, gitDirty := loadGitInfo()

	manifest := traceManifestView{
		RunID:        workerID,
		WorkflowID:   task,
		PromptLength: len(task),
		StartedAt:    startedAt,
		EndedAt:      time.Now().UTC(),
		AppVersion:   appVersion,
		AppCommit:    appCommit,
		AppDate:      appDate,
		GitCommit:    gitCommit,
		GitDirty:     gitDirty,
		Config:       traceConfigView{Mode: cfg.Trace.Mode, Dir: cfg.Trace.Dir},
	}
	if result != nil {
		var tokensIn, tokensOut int64
		if result.Usage != nil {
			tokensIn, tokensOut = result.Usage.InputTokens, result.Usage.OutputTokens
		}
		manifest.Summary = traceSummaryView{
			TotalPrompts:   1,
			TotalTokensIn:  int(tokensIn),
			TotalTokensOut: int(tokensOut),
			TotalFiles:     len(result.FilesChanged),
			TotalBytes:     int64(len(result.Response)),
		}
	}

	traceDir := resolveTraceDir(cfg.Trace.Dir)
	return persistTraceManifest(traceDir, manifest)
}

// recordOrchestrationTelemetry appends this run's outcome to the durable
// SQLite history at cfg.State.Path's directory, independent of whether
// per-run trace manifests are enabled.
func recordOrchestrationTelemetry(cfg *config.Config, workerID, branch, task string, startedAt time.Time, result *core.WorkerResult) error {
	dbPath := telemetryDBPath(cfg)
	store, err := telemetry.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening telemetry store: %w", err)
	}
	defer store.Close()

	rec := telemetry.RunRecord{
		WorkerID:  workerID,
		Branch:    branch,
		Task:      task,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
		Result:    result,
	}
	if result == nil {
		rec.Error = "worker did not complete"
	}
	return store.RecordRun(context.Background(), rec)
}

// telemetryDBPath derives the telemetry database path from the state
// directory configured for workflow state persistence.
func telemetryDBPath(cfg *config.Config) string {
	dir := filepath.Dir(cfg.State.Path)
	if dir == "" || dir == "." {
		dir = ".quorum/state"
	}
	return filepath.Join(dir, "telemetry.db")
}

// watchRegistryChanges logs when another process edits this main
// workspace's griptree registry while this orchestrate run is active.
func watchRegistryChanges(ctx context.Context, rw *workspace.RegistryWatcher, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-rw.Changes:
			if !ok {
				return
			}
			reg := rw.Reload()
			log.Info("griptree registry changed externally", "griptrees", len(reg.Griptrees))
		}
	}
}

// watchOrchestrationEvents drains the commander's lifecycle stream, logging
// each transition and auto-approving permission requests (this entry point
// has no interactive reviewer), until the single spawned worker reaches a
// terminal event. Returns the process exit code to use and, when the worker
// completed successfully, its result for the trace manifest.
func watchOrchestrationEvents(ctx context.Context, c *commander.Commander, log *logging.Logger) (int, *core.WorkerResult) {
	for {
		select {
		case <-ctx.Done():
			return 1, nil
		case ev, ok := <-c.Events():
			if !ok {
				return 1, nil
			}
			switch ev.Kind {
			case core.EventPermissionRequest:
				log.Info("auto-approving permission request", "worker", ev.WorkerID, "tool", ev.ToolName)
				_ = c.RespondPermission(ev.WorkerID, ev.RequestID, core.Approve())
			case core.EventStatusChanged:
				log.Info("worker status", "worker", ev.WorkerID, "status", ev.Status.Kind)
			case core.EventCompleted:
				log.Info("worker completed", "worker", ev.WorkerID)
				if ev.Result != nil {
					fmt.Println(ev.Result.Response)
				}
				return 0, ev.Result
			case core.EventFailed:
				log.Error("worker failed", "worker", ev.WorkerID, "error", ev.Error)
				return 1, nil
			case core.EventCancelled:
				log.Warn("worker cancelled", "worker", ev.WorkerID)
				return 1, nil
			case core.EventDisconnected:
				log.Warn("worker disconnected", "worker", ev.WorkerID)
				return 1, nil
			}
		}
	}
}
