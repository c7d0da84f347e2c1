package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/cli"
	"weaver-hq/loom/pkg/limits"
	ledgerstorage "weaver-hq/loom/pkg/limits/storage"
)

var usageFlags struct {
	tenant string
	start  string
	end    string
	byDay  bool
	output string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize tenant spend",
	Long: `Summarize committed spend from the SQLite ledger named by limits.ledger.path.

Dates are UTC days in YYYY-MM-DD form and both bounds are inclusive. The
end defaults to today and the start to 30 days before the end. Without
--tenant every tenant of the config is reported.

Examples:
  loom usage
  loom usage --tenant acme --start 2026-03-01 --end 2026-03-31
  loom usage --tenant acme --by-day --output json`,
	RunE: summarizeUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	f := usageCmd.Flags()
	f.StringVarP(&usageFlags.tenant, "tenant", "t", "", "only this tenant")
	f.StringVar(&usageFlags.start, "start", "", "first day, YYYY-MM-DD")
	f.StringVar(&usageFlags.end, "end", "", "last day, YYYY-MM-DD")
	f.BoolVar(&usageFlags.byDay, "by-day", false, "break the table down by day instead of by model")
	f.StringVarP(&usageFlags.output, "output", "o", "table", "output format: table, json")
}

// UsageReport is the result of `usage`.
type UsageReport struct {
	Period  limits.Period          `json:"period"`
	Tenants []*limits.UsageSummary `json:"tenants"`

	byDay bool
}

// Table implements cli.Tabular. Each tenant gets one row per model (or
// day) followed by a total row.
func (r UsageReport) Table() cli.Table {
	cost := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	count := func(v int64) string { return strconv.FormatInt(v, 10) }

	if r.byDay {
		t := cli.Table{Headers: []string{"TENANT", "DATE", "REQUESTS", "TOKENS", "COST"}}
		for _, s := range r.Tenants {
			for _, d := range s.ByDay {
				t.Rows = append(t.Rows, []string{s.TenantID, d.Date, count(d.Requests), count(d.Tokens), cost(d.Cost)})
			}
			t.Rows = append(t.Rows, []string{s.TenantID, "total", count(s.Requests), count(s.Tokens), cost(s.Cost)})
		}
		return t
	}

	t := cli.Table{Headers: []string{"TENANT", "MODEL", "REQUESTS", "PROMPT", "COMPLETION", "COST"}}
	for _, s := range r.Tenants {
		for _, m := range s.ByModel {
			t.Rows = append(t.Rows, []string{s.TenantID, m.Model, count(m.Requests),
				count(m.PromptTokens), count(m.CompletionTokens), cost(m.Cost)})
		}
		t.Rows = append(t.Rows, []string{s.TenantID, "total", count(s.Requests),
			count(s.PromptTokens), count(s.CompletionTokens), cost(s.Cost)})
	}
	return t
}

func summarizeUsage(cmd *cobra.Command, args []string) error {
	quietLogging()

	format, err := cli.ParseFormat(usageFlags.output)
	if err != nil {
		return err
	}
	period, err := limits.ParsePeriod(usageFlags.start, usageFlags.end, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Limits.Ledger.Backend != "sqlite" {
		return cli.NewConfigError("limits.ledger.backend", "the memory ledger keeps nothing to summarize")
	}
	path := cfg.Limits.Ledger.Path
	if _, err := os.Stat(path); err != nil {
		return cli.NewCommandError("usage", fmt.Errorf("spend ledger %s: %w", path, err))
	}

	ledger, err := ledgerstorage.NewSQLiteLedger(path)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	defer ledger.Close()

	tenants := []string{usageFlags.tenant}
	if usageFlags.tenant == "" {
		tenants = tenants[:0]
		for _, tc := range cfg.Tenants {
			tenants = append(tenants, tc.ID)
		}
	}

	entries, err := ledger.Since(cmd.Context(), period.Start)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	report := UsageReport{Period: period, Tenants: make([]*limits.UsageSummary, 0, len(tenants)), byDay: usageFlags.byDay}
	for _, id := range tenants {
		report.Tenants = append(report.Tenants, limits.Summarize(entries, id, period))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}
