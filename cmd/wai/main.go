// Package main is the entry point for the wai CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/wai/internal/config"
	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/security"

	// Compiled-in modules.
	_ "github.com/flemzord/wai/internal/gateway"
	_ "github.com/flemzord/wai/internal/telemetry"
	_ "github.com/flemzord/wai/modules/provider/workersai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wai:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wai",
		Short:         "Cloudflare Workers AI client and gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), modelsCmd(), chatCmd(), setupCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wai %s (commit: %s, built: %s)\n", version, commit, date)
			printModules(out)
		},
	}
}

// printModules lists the compiled modules grouped by namespace.
func printModules(out io.Writer) {
	var namespaces []string
	for _, mod := range core.GetModules() {
		if ns := mod.ID.Namespace(); !slices.Contains(namespaces, ns) {
			namespaces = append(namespaces, ns)
		}
	}
	if len(namespaces) == 0 {
		fmt.Fprintln(out, "\nNo compiled modules.")
		return
	}

	fmt.Fprintln(out, "\nCompiled modules:")
	for _, ns := range namespaces {
		fmt.Fprintf(out, "  %s:\n", ns)
		for _, mod := range core.GetModulesByNamespace(ns) {
			fmt.Fprintf(out, "    %s\n", mod.ID)
		}
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start wai with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			app, logger, err := newApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("wai starting", "version", version)
			return app.Run(ctx)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			_, _, err = newApp(cfg)
			if err != nil {
				return err
			}

			ids := config.Resolve(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

// loadConfig loads and validates the file named by --config, or the first
// one found in the standard locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		found, err := config.FindPath()
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config, redactor *security.Redactor) (*slog.Logger, error) {
	return security.NewLogger(os.Stderr, security.LogOptions{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, redactor)
}

// newApp provisions every configured module.
func newApp(cfg *config.Config) (*core.App, *slog.Logger, error) {
	redactor := security.NewRedactor()
	logger, err := newLogger(cfg, redactor)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	appCtx := core.NewAppContext(logger, redactor).WithModuleConfigs(cfg.Modules)
	app := core.NewApp(appCtx)
	if err := app.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}
