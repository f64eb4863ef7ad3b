package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BadgerOps/srcpack/internal/config"
	"github.com/BadgerOps/srcpack/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath    string
	toolDir    string
	sourceRoot string
	logLevel   string
	logFormat  string
	quiet      bool
	globalCfg  *config.Config
	logger     *slog.Logger

	// Run history, nil when disabled or unavailable
	globalStore *store.Store
)

// openHistory opens the run history database. When required is false a
// failure only disables history for this invocation.
func openHistory(required bool) error {
	if !globalCfg.History.Enabled || globalCfg.History.DBPath == "" {
		if required {
			return fmt.Errorf("run history is disabled")
		}
		return nil
	}

	st, err := store.New(globalCfg.History.DBPath, logger)
	if err != nil {
		if required {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		logger.Warn("run history unavailable, continuing without it", "path", globalCfg.History.DBPath, "error", err)
		return nil
	}
	globalStore = st
	return nil
}

// historyMode reports whether a command records or reads run history, and
// whether it cannot work without it.
func historyMode(cmdName string) (use, required bool) {
	switch cmdName {
	case "srcpack", "pack":
		return true, false
	case "history":
		return true, true
	default:
		return false, false
	}
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srcpack",
		Short: "Package a host project's tracked sources for npm distribution",
		Long: `srcpack snapshots the tracked files of a host project, stages them next to
the npm package manifest and build script, stamps the host version into the
manifest and compresses the result into a single distributable tarball.

Run without a subcommand from the packaging tool's directory to build the
artifact with the configured defaults.`,
		Example: `  srcpack
  srcpack pack --compression zstd
  srcpack pack --backend go-git --source-root ../..
  srcpack resolve-version
  srcpack history --limit 5
  srcpack config show`,
		Version:      "0.1.0",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         packRun,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			// Skip config loading for commands that don't need it
			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// Load config
			explicitConfig := cfgPath != ""
			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if explicitConfig || cfgPath == config.LocalConfigFile {
					if err := globalCfg.AnchorToolDir(cfgPath); err != nil {
						return err
					}
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if toolDir != "" {
				globalCfg.Paths.ToolDir = toolDir
			}
			if sourceRoot != "" {
				globalCfg.Paths.SourceRoot = sourceRoot
			}

			logger.Debug("config loaded", "path", cfgPath, "tool_dir", globalCfg.Paths.ToolDir, "source_root", globalCfg.Paths.SourceRoot)

			if use, required := historyMode(cmd.Name()); use {
				if err := openHistory(required); err != nil {
					return err
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&toolDir, "tool-dir", "", "override the packaging tool directory (defaults to the directory of a --config or ./srcpack.yaml file, otherwise the working directory)")
	cmd.PersistentFlags().StringVar(&sourceRoot, "source-root", "", "override the host project root")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	// Add subcommands
	cmd.AddCommand(
		newPackCmd(),
		newResolveVersionCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet && level < slog.LevelError {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":       true,
		"completion": true,
	}
	return skipConfigCmds[cmdName]
}
