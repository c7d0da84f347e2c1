package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/channels"
	"weaver-hq/loom/pkg/cli"
	"weaver-hq/loom/pkg/config"
)

var validateFlags struct {
	strict bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and channels file",
	Long: `Load the configuration and the channels file it points at and check them
without starting the gateway.

Besides schema errors, validate reports tenants that cannot route anywhere:
  - tenants in the config with no channels in the channels file
  - tenants in the channels file that no API key can reach
  - allowed models no channel of the tenant serves

Examples:
  loom validate
  loom validate --config /etc/loom/config.yaml --strict`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "treat warnings as errors")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	quietLogging()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Configuration valid (%d tenants)\n", len(cfg.Tenants))

	file, err := channels.LoadFile(cfg.Channels.File)
	if err != nil {
		return cli.NewConfigError("channels.file", err.Error())
	}
	total := 0
	for _, t := range file.Tenants {
		total += len(t.Channels)
	}
	fmt.Fprintf(out, "✓ Channels file valid (%d channels across %d tenants)\n", total, len(file.Tenants))

	warnings := crossCheck(cfg, file)
	printWarnings(out, warnings)

	if validateFlags.strict && len(warnings) > 0 {
		return cli.NewConfigError("", fmt.Sprintf("%d warnings in strict mode", len(warnings)))
	}
	return nil
}

// crossCheck finds tenants the config and the channels file disagree on.
func crossCheck(cfg *config.Config, file *channels.File) []string {
	var warnings []string

	byID := make(map[string]*channels.TenantChannels, len(file.Tenants))
	for i := range file.Tenants {
		byID[file.Tenants[i].ID] = &file.Tenants[i]
	}

	for _, t := range cfg.Tenants {
		tc, ok := byID[t.ID]
		if !ok || len(tc.Channels) == 0 {
			warnings = append(warnings, fmt.Sprintf("tenant %q has no channels", t.ID))
			continue
		}
		for _, model := range t.AllowedModels {
			if !servesModel(tc, model) {
				warnings = append(warnings, fmt.Sprintf("tenant %q allows model %q but no channel serves it", t.ID, model))
			}
		}
	}

	for _, tc := range file.Tenants {
		if cfg.Tenant(tc.ID) == nil {
			warnings = append(warnings, fmt.Sprintf("channels of tenant %q are unreachable: no API key maps to it", tc.ID))
		}
	}
	return warnings
}

func servesModel(tc *channels.TenantChannels, model string) bool {
	for i := range tc.Channels {
		if _, ok := tc.Channels[i].Resolve(model); ok {
			return true
		}
	}
	return false
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d warnings:\n", len(warnings))
	for _, msg := range warnings {
		fmt.Fprintf(w, "  ! %s\n", msg)
	}
}
