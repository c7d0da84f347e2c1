package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/channels"
	"weaver-hq/loom/pkg/cli"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providerfactory"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/server"
)

var channelsFlags struct {
	file    string
	tenant  string
	output  string
	timeout time.Duration
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect upstream channels",
	Long: `Inspect the channels declared in the channels file.

The file defaults to channels.file from the config; --file overrides it.`,
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured channels",
	Long: `List every channel of the channels file, ordered as in the file.

Examples:
  loom channels list
  loom channels list --tenant acme --output json`,
	RunE: listChannels,
}

var channelsProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every active channel once",
	Long: `Run one health probe against every active channel and print the results.

The command exits with status 3 when any probe fails, which makes it usable
as a deployment smoke test.

Examples:
  loom channels probe
  loom channels probe --tenant acme --timeout 10s --output json`,
	RunE: probeChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd, channelsProbeCmd)

	channelsCmd.PersistentFlags().StringVarP(&channelsFlags.file, "file", "f", "", "channels file (overrides channels.file)")
	channelsCmd.PersistentFlags().StringVarP(&channelsFlags.tenant, "tenant", "t", "", "only show channels of this tenant")
	channelsCmd.PersistentFlags().StringVarP(&channelsFlags.output, "output", "o", "table", "output format: table, json")
	channelsProbeCmd.Flags().DurationVar(&channelsFlags.timeout, "timeout", 0, "per-probe timeout (default health.probe.timeout)")
}

// ChannelRow is one line of `channels list`.
type ChannelRow struct {
	Tenant   string               `json:"tenant"`
	ID       string               `json:"id"`
	Type     domain.ProviderType  `json:"type"`
	BaseURL  string               `json:"base_url,omitempty"`
	Priority int                  `json:"priority"`
	Weight   int                  `json:"weight"`
	Status   domain.ChannelStatus `json:"status"`
	Models   []string             `json:"models"`
}

// ChannelList is the result of `channels list`.
type ChannelList []ChannelRow

// Table implements cli.Tabular.
func (l ChannelList) Table() cli.Table {
	t := cli.Table{Headers: []string{"TENANT", "ID", "TYPE", "PRIORITY", "WEIGHT", "STATUS", "MODELS"}}
	for _, r := range l {
		t.Rows = append(t.Rows, []string{
			r.Tenant,
			r.ID,
			string(r.Type),
			strconv.Itoa(r.Priority),
			strconv.Itoa(r.Weight),
			string(r.Status),
			strings.Join(r.Models, ","),
		})
	}
	return t
}

// ProbeReport is the result of `channels probe`.
type ProbeReport struct {
	Results []health.ProbeResult `json:"results"`
	Healthy int                  `json:"healthy"`
	Failed  int                  `json:"failed"`
}

// Table implements cli.Tabular.
func (r ProbeReport) Table() cli.Table {
	t := cli.Table{Headers: []string{"CHANNEL", "TYPE", "RESULT", "LATENCY", "ERROR"}}
	for _, res := range r.Results {
		result := "ok"
		if !res.OK() {
			result = "FAIL"
		}
		t.Rows = append(t.Rows, []string{
			res.ChannelID,
			res.Type,
			result,
			res.Latency.Round(time.Millisecond).String(),
			res.Error,
		})
	}
	return t
}

func listChannels(cmd *cobra.Command, args []string) error {
	quietLogging()

	format, err := cli.ParseFormat(channelsFlags.output)
	if err != nil {
		return err
	}
	file, err := loadChannelsFile()
	if err != nil {
		return err
	}

	list := ChannelList{}
	for _, tc := range file.Tenants {
		if channelsFlags.tenant != "" && tc.ID != channelsFlags.tenant {
			continue
		}
		for _, ch := range tc.Channels {
			models := ch.ServedModels()
			if len(models) == 0 && len(ch.Models) > 0 {
				models = []string{domain.Wildcard}
			}
			list = append(list, ChannelRow{
				Tenant:   tc.ID,
				ID:       ch.ID,
				Type:     ch.Type,
				BaseURL:  ch.BaseURL,
				Priority: ch.Priority,
				Weight:   ch.Weight,
				Status:   ch.Status,
				Models:   models,
			})
		}
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), list)
}

func probeChannels(cmd *cobra.Command, args []string) error {
	quietLogging()

	format, err := cli.ParseFormat(channelsFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file, err := loadChannelsFileFrom(cfg.Channels.File)
	if err != nil {
		return err
	}
	resolver, err := server.Secrets(&cfg.Channels.Secrets)
	if err != nil {
		return cli.NewConfigError("channels.secrets", err.Error())
	}
	defer resolver.Close()
	if err := file.ResolveSecrets(cmd.Context(), resolver); err != nil {
		return cli.NewConfigError("channels.secrets", err.Error())
	}

	var source channelList
	for _, tc := range file.Tenants {
		if channelsFlags.tenant == "" || tc.ID == channelsFlags.tenant {
			source = append(source, tc.Channels...)
		}
	}
	active := 0
	for i := range source {
		if source[i].Status == domain.StatusActive {
			active++
		}
	}

	manager, err := providerfactory.NewManager(server.ProviderConfig(&cfg.Providers))
	if err != nil {
		return cli.NewCommandError("channels probe", err)
	}
	defer manager.Close()

	var progress *cli.SimpleProgress
	pc := server.ProbeConfig(&cfg.Health.Probe)
	if channelsFlags.timeout > 0 {
		pc.Timeout = channelsFlags.timeout
	}
	if format == cli.FormatTable {
		progress = cli.NewLabelledProgress(os.Stderr, "Probing")
		pc.OnResult = func(health.ProbeResult) { progress.Increment() }
		progress.Start(int64(active))
	}

	monitor := health.NewMonitor(server.BreakerConfig(&cfg.Health, nil))
	loop := health.NewProbeLoop(monitor, source, manager, pc)
	results := loop.RunOnce(cmd.Context())
	if progress != nil {
		progress.Finish()
	}

	report := ProbeReport{Results: results}
	for _, r := range results {
		if r.OK() {
			report.Healthy++
		} else {
			report.Failed++
		}
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return &cli.UnhealthyError{Failed: report.Failed, Total: len(results)}
	}
	return nil
}

// channelList serves a fixed channel set to the probe loop.
type channelList []domain.Channel

func (l channelList) Channels(context.Context) ([]domain.Channel, error) {
	return l, nil
}

// loadChannelsFile reads the file named by --file, or the config's
// channels.file when the flag is unset.
func loadChannelsFile() (*channels.File, error) {
	if channelsFlags.file != "" {
		return loadChannelsFileFrom("")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return loadChannelsFileFrom(cfg.Channels.File)
}

func loadChannelsFileFrom(configured string) (*channels.File, error) {
	path := configured
	if channelsFlags.file != "" {
		path = channelsFlags.file
	}
	file, err := channels.LoadFile(path)
	if err != nil {
		return nil, cli.NewConfigError("channels.file", err.Error())
	}
	if channelsFlags.tenant != "" && !hasTenant(file, channelsFlags.tenant) {
		return nil, fmt.Errorf("tenant %q not found in %s", channelsFlags.tenant, path)
	}
	return file, nil
}

func hasTenant(f *channels.File, id string) bool {
	for _, t := range f.Tenants {
		if t.ID == id {
			return true
		}
	}
	return false
}
