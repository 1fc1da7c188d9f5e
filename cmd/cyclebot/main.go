// Command cyclebot scans crypto exchanges for profitable conversion cycles.
// It loads configuration, validates it, wires dependencies and runs the
// engine in the configured mode.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/cyclebot/internal/app"
	"github.com/alanyoungcy/cyclebot/internal/config"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cyclebot",
	Short:         "Detect profitable currency conversion cycles across crypto exchanges",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.toml", "path to configuration file (.toml, .yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("strategy", "", "detection strategy override (bf, tri)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine loop in the configured mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(os.Stdout, cfg.LogLevel)
		slog.SetDefault(logger)

		path, _ := cmd.Flags().GetString("config")
		logger.Info("cyclebot starting",
			slog.String("version", version),
			slog.String("mode", cfg.Mode),
			slog.String("config", path),
		)

		application := app.New(cfg, logger)
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("cyclebot: %w", err)
		}
		logger.Info("cyclebot stopped")
		return nil
	},
}

// --- Scan Command ---

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single iteration and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Stdout carries the JSON result only.
		logger := newLogger(os.Stderr, cfg.LogLevel)
		slog.SetDefault(logger)

		application := app.New(cfg, logger)
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if _, err := application.Scan(ctx, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("cyclebot: %w", err)
		}
		return nil
	},
}

// --- Validate Command ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration, then print it with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "# configuration is valid")
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(config.RedactedConfig(cfg))
	},
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cyclebot %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", date)
	},
}

// loadConfig reads the --config file, applies flag overrides and validates
// the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if s, _ := cmd.Flags().GetString("strategy"); s != "" {
		cfg.Engine.Strategy = s
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(config.FormatError(err))
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
