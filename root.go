package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jormala/tablewatch/internal/config"
	"github.com/jormala/tablewatch/internal/journal"
	"github.com/jormala/tablewatch/internal/meta"
	"github.com/jormala/tablewatch/internal/registry"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tablewatch",
		Short:   "Watch remote tables and keep local exports in sync",
		Long: `tablewatch tracks tables you have exported from a remote storage service,
polls the service for change signals, and re-runs the export tool when a
watched table changes.`,
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newResyncCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// (defaults -> config file -> environment) and stores it in resolvedCfg.
func loadConfig() error {
	resolved, err := config.Resolve(config.ReadEnvOverrides(), flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openRegistry opens the watch registry in the data directory, creating the
// directory on first use.
func openRegistry(logger *slog.Logger) (*registry.Registry, error) {
	dbPath := config.DefaultRegistryPath()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return registry.Open(dbPath, logger)
}

// openJournal opens the outcome journal, honoring the configured path and
// defaulting into the data directory.
func openJournal(logger *slog.Logger) (*journal.Journal, error) {
	path := resolvedCfg.Logging.JournalFile
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), "journal.log")
	}

	return journal.Open(path, logger)
}

// resolveProject returns the project identifier from the flag when set,
// falling back to the configured default.
func resolveProject(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if resolvedCfg.Connection.Project != "" {
		return resolvedCfg.Connection.Project, nil
	}

	return "", fmt.Errorf("no project specified (use --project or set connection.project, env %s)", config.EnvProject)
}

// newMetaClient creates a metadata client from the resolved connection.
func newMetaClient(logger *slog.Logger) *meta.Client {
	return meta.NewClient(resolvedCfg.Connection.Host, resolvedCfg.Connection.Token, nil, logger)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
