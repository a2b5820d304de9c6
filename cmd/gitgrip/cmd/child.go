package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/cli"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/childagent"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/config"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// Child invocation flags (spec §6's child invocation contract): the
// commander launches this same executable with exactly these four flags
// instead of a subcommand name, so they're bound to the root command rather
// than a dedicated one.
var (
	childMode       bool
	childSocketPath string
	childID         string
	childTask       string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&childMode, "child-mode", false,
		"internal: run as a worker process driven by a commander over IPC")
	rootCmd.PersistentFlags().StringVar(&childSocketPath, "socket-path", "",
		"internal: commander IPC socket path (requires --child-mode)")
	rootCmd.PersistentFlags().StringVar(&childID, "child-id", "",
		"internal: worker id assigned by the commander (requires --child-mode)")
	rootCmd.PersistentFlags().StringVar(&childTask, "child-task", "",
		"internal: task prompt assigned by the commander (requires --child-mode)")
}

// runChildMode drives one child-agent lifecycle: connect to the commander
// over the socket it was handed, run one task turn, report exactly one
// terminal message, exit. It never returns to cobra's normal command
// routing once dispatched.
func runChildMode(_ *cobra.Command, _ []string) error {
	if childSocketPath == "" || childID == "" {
		return fmt.Errorf("--child-mode requires --socket-path and --child-id")
	}

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

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving workspace directory: %w", err)
	}

	provider, err := buildChildProvider(cfg, cwd)
	if err != nil {
		return fmt.Errorf("building model provider: %w", err)
	}
	tools := childagent.NewWorkspaceTools(cwd)

	agent := childagent.New(childagent.Options{
		SocketPath: childSocketPath,
		WorkerID:   childID,
		Task:       childTask,
		Cwd:        cwd,
		Provider:   provider,
		Tools:      tools,
		Log:        logger,
	})

	result, err := agent.Run(ctx)
	if err != nil {
		return fmt.Errorf("child agent run: %w", err)
	}
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// buildChildProvider resolves the configured default agent into a
// core.ModelProvider, configuring only the fields the unified config
// struct actually carries (path, model, default five-minute timeout) —
// the same subset run.go's own single-agent mode relies on.
func buildChildProvider(cfg *config.Config, workDir string) (core.ModelProvider, error) {
	name := cfg.Agents.Default
	if name == "" {
		name = "claude"
	}

	registry := cli.NewRegistry()
	var agentCfg config.AgentConfig
	switch name {
	case "gemini":
		agentCfg = cfg.Agents.Gemini
	case "codex":
		agentCfg = cfg.Agents.Codex
	case "copilot":
		agentCfg = cfg.Agents.Copilot
	default:
		name = "claude"
		agentCfg = cfg.Agents.Claude
	}
	registry.Configure(name, cli.AgentConfig{
		Name:    name,
		Path:    agentCfg.Path,
		Model:   agentCfg.Model,
		Timeout: 5 * time.Minute,
		WorkDir: workDir,
	})

	return childagent.NewCLIProvider(registry, name, workDir)
}
