package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ultratendency/sentry/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagRemote     []string
	flagCatalog    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// cfgSource is the config file path resolvedCfg was loaded from.
var cfgSource string

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentry-paths",
		Short: "Catalog path sync for the authorization service",
		Long: "Keeps the authorization service's view of filesystem paths in step with the\n" +
			"metadata catalog: every catalog mutation becomes a sequence-numbered update\n" +
			"pushed to the service, with full-image repair when the two diverge.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringSliceVar(&flagRemote, "remote", nil, "remote service addresses (host or host:port)")
	cmd.PersistentFlags().StringVar(&flagCatalog, "catalog", "", "catalog database path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResyncCmd())
	cmd.AddCommand(newEmitCmd())
	cmd.AddCommand(newParsePathCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		CatalogDB:  flagCatalog,
	}

	if cmd.Flags().Changed("remote") {
		cli.Remote = flagRemote
	}

	switch {
	case flagVerbose:
		cli.LogLevel = "debug"
	case flagQuiet:
		cli.LogLevel = "error"
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	cfgSource = config.ResolvePath(env, cli)

	return nil
}

// buildLogger creates the process logger from the resolved config. The
// "auto" format writes text to a terminal and JSON otherwise.
func buildLogger() *slog.Logger {
	cfg := resolvedCfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return newLogger(os.Stderr, cfg.Logging, isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
}

func newLogger(w io.Writer, lc config.LoggingConfig, terminal bool) *slog.Logger {
	level := slog.LevelInfo

	switch lc.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	json := lc.LogFormat == "json" || (lc.LogFormat == "auto" && !terminal)
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
