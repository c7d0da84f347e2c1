package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/cli"
	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	envFiles []string
	verbose  bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - multi-tenant LLM gateway",
		Long: `Loom is a multi-tenant gateway for LLM chat completion APIs.

It exposes an OpenAI-compatible endpoint and, for every request:
  - selects an upstream channel with the tenant's routing strategy
  - fails over to the next channel on transient upstream errors
  - trips circuit breakers on failing channels and probes them back
  - enforces per-tenant rate limits and spend budgets`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files loaded before the config (default .env)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// loadConfig reads the config file with environment overrides. Errors
// are returned as *cli.ConfigError.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, cli.NewConfigError("env-file", err.Error())
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

// setupLogging installs the process logger. --verbose forces debug.
func setupLogging(cfg *config.LoggingConfig) error {
	lc := logging.Config{
		Level:         cfg.Level,
		Format:        cfg.Format,
		AddSource:     cfg.AddSource,
		RedactSecrets: cfg.RedactSecrets,
	}
	for _, p := range cfg.RedactPatterns {
		lc.RedactPatterns = append(lc.RedactPatterns, logging.Pattern{
			Name:        p.Name,
			Pattern:     p.Pattern,
			Replacement: p.Replacement,
		})
	}
	if verbose {
		lc.Level = "debug"
	}
	if _, err := logging.Setup(lc); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	return nil
}

// quietLogging sends logs of one-shot commands to stderr at warn level
// so they do not mix with command output.
func quietLogging() {
	level := "warn"
	if verbose {
		level = "debug"
	}
	_, _ = logging.Setup(logging.Config{Level: level, Format: string(logging.FormatText), RedactSecrets: true, Writer: os.Stderr})
}
