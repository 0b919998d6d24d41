package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rzbill/ldes/internal/cmd/admin"
	serverrun "github.com/rzbill/ldes/internal/cmd/server"
	cfgpkg "github.com/rzbill/ldes/internal/config"
	logpkg "github.com/rzbill/ldes/pkg/log"
)

func main() {
	// Respect LDES_LOG_LEVEL for CLI output as well
	level := os.Getenv("LDES_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:          "ldes",
		Short:        "Time-based fragmentation and pagination of event streams",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("LDES_CONFIG"), "Config file (.json, .yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses the config or an OS-specific default)")

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start an ldes node",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			metricsAddr, _ := cmd.Flags().GetString("metrics")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			err := serverrun.Run(ctx, serverrun.Options{
				ConfigPath: configPath,
				Override: func(c *cfgpkg.Config) {
					if dataDir != "" {
						c.DataDir = dataDir
					}
					if metricsAddr != "" {
						c.MetricsAddr = metricsAddr
					}
					if logLevel != "" {
						c.LogLevel = logLevel
					}
					if logFormat != "" {
						c.LogFormat = logFormat
					}
				},
			})
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("metrics", "", "Metrics/health listen address, e.g. :9090 (disabled when empty)")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	admin.AddCommands(rootCmd, admin.LocalOpener())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}
