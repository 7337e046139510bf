// Package cmd implements the clipbridge CLI: the sync daemon (run/join)
// and the offline commands that inspect its state files.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/config"
)

// version is stamped at release time via -ldflags "-X ...cmd.version=".
var version = "dev"

var configFlag string

// Execute runs the CLI. Command handlers exit the process themselves on
// failure, so the only error surfacing here is cobra's own.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clipbridge",
		Short: "Sync your clipboard across devices through a relay session",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.clipbridge/config.yaml)")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(joinCmd())
	cmd.AddCommand(pairCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(ipCmd())
	cmd.AddCommand(keyCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clipbridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clipbridge %s\n", version)
		},
	}
}

// resolveConfigPath picks the config file: the --config flag, then the
// CLIPBRIDGE_CONFIG environment variable, then the default location.
func resolveConfigPath() string {
	if configFlag != "" {
		return config.ExpandHome(configFlag)
	}
	if env := os.Getenv("CLIPBRIDGE_CONFIG"); env != "" {
		return config.ExpandHome(env)
	}
	return config.DefaultPath()
}

// mustLoadConfig loads the active config or exits. Commands that only
// read state files still need it for the data directory paths.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// initLogging installs the slog default from the configured level. A
// broken config falls back to info so the error is still reportable.
func initLogging() {
	level := slog.LevelInfo
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		switch cfg.Log.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
