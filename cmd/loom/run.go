package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/cli"
	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The server listens on the configured address, routes chat completion
requests to the channels of the calling tenant and runs the background
health probes. SIGINT or SIGTERM trigger a graceful shutdown.

Examples:
  # Start with default config
  loom run

  # Start with custom config
  loom run --config /etc/loom/config.yaml

  # Override listen address
  loom run --listen 0.0.0.0:8080

  # Build every component and exit without serving
  loom run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build the gateway from config without serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return cli.NewConfigError("env-file", err.Error())
	}
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := setupLogging(&cfg.Telemetry.Logging); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	slog.Info("loading gateway",
		"config", cfgFile,
		"channels", cfg.Channels.File,
		"tenants", len(cfg.Tenants),
		"strategy", cfg.Routing.Strategy,
	)
	srv, err := server.New(ctx, cfg, buildInfo())
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.dryRun {
		if err := srv.Shutdown(context.Background()); err != nil {
			return cli.NewCommandError("run", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Gateway built successfully")
		return nil
	}

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
