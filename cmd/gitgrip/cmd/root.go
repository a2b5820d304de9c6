package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool
	projectID string // --project/-p flag for multi-project support

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "gitgrip",
	Short: "Multi-agent orchestration over isolated git workspaces",
	Long: `gitgrip spawns isolated agent workers, each in its own git worktree
(or multi-repo griptree), coordinated over a local IPC channel with
permission mediation, cancellation, and lifecycle tracking.

Run 'gitgrip orchestrate <task>' to spawn a worker, or 'gitgrip child-mode'
flags are used internally when this binary re-execs itself as a child.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	// A bare invocation with --child-mode re-enters as a spawned worker (see
	// child.go); otherwise fall through to cobra's usage output.
	RunE: func(c *cobra.Command, args []string) error {
		if childMode {
			return runChildMode(c, args)
		}
		return c.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .quorum/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "",
		"project ID, name, or path to operate on (default: current directory or default project)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		// If --project flag is specified, try to resolve project path
		// Otherwise use current directory
		configPaths := []string{".quorum"}

		// Add project-specific config path if --project is specified
		if projectID != "" {
			// We'll attempt to resolve the project path
			// This is a best-effort - if it fails, we fall back to current directory
			if projectPath := tryResolveProjectPath(projectID); projectPath != "" {
				configPaths = append([]string{projectPath + "/.quorum"}, configPaths...)
			}
		}

		for _, p := range configPaths {
			viper.AddConfigPath(p)
		}
		viper.AddConfigPath("$HOME/.config/quorum")
	}

	viper.SetEnvPrefix("QUORUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return nil
}

// tryResolveProjectPath attempts to resolve a project path from an ID/name/path.
// This is used during config initialization, so it's best-effort and doesn't return errors.
func tryResolveProjectPath(value string) string {
	// This is a simplified version that doesn't use the registry to avoid circular deps
	// If value looks like a path, use it directly
	if strings.HasPrefix(value, "/") || strings.HasPrefix(value, ".") {
		return value
	}
	// For now, return empty - the registry-based resolution happens later
	return ""
}
