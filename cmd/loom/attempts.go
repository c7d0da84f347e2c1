package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"weaver-hq/loom/pkg/attemptlog/export"
	"weaver-hq/loom/pkg/attemptlog/query"
	attemptstorage "weaver-hq/loom/pkg/attemptlog/storage"
	"weaver-hq/loom/pkg/cli"
)

var attemptsFlags struct {
	params query.Params
	format string
	out    string
	all    bool
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Read the attempt log",
}

var attemptsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attempt records",
	Long: `Export records from the SQLite attempt log named by attempt_log.sqlite.path.

Times accept RFC 3339 or a duration before now.

Examples:
  loom attempts export --since 24h --format csv --out attempts.csv
  loom attempts export --request req-123
  loom attempts export --channel openai-primary --outcome transient --all --format ndjson`,
	RunE: exportAttempts,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.AddCommand(attemptsExportCmd)

	f := attemptsExportCmd.Flags()
	f.StringVar(&attemptsFlags.params.RequestID, "request", "", "only this request ID")
	f.StringVar(&attemptsFlags.params.ChannelID, "channel", "", "only this channel")
	f.StringVar(&attemptsFlags.params.Model, "model", "", "only this requested model")
	f.StringVar(&attemptsFlags.params.Outcome, "outcome", "", "success, transient, fatal, canceled or interrupted")
	f.StringVar(&attemptsFlags.params.Since, "since", "", "earliest timestamp")
	f.StringVar(&attemptsFlags.params.Until, "until", "", "latest timestamp")
	f.IntVar(&attemptsFlags.params.Limit, "limit", 0, "records per page (default 100)")
	f.StringVar(&attemptsFlags.params.Order, "order", "desc", "asc or desc by timestamp")
	f.BoolVar(&attemptsFlags.all, "all", false, "export every matching record, not one page")
	f.StringVar(&attemptsFlags.format, "format", "json", "output format: json, ndjson, csv")
	f.StringVar(&attemptsFlags.out, "out", "", "write to this file instead of stdout")
}

func exportAttempts(cmd *cobra.Command, args []string) error {
	quietLogging()

	format, err := export.ParseFormat(attemptsFlags.format)
	if err != nil {
		return err
	}
	q, err := attemptsFlags.params.Build(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.AttemptLog.Backend == "memory" {
		return cli.NewConfigError("attempt_log.backend", "the memory backend keeps nothing to export")
	}
	path := cfg.AttemptLog.SQLite.Path
	if _, err := os.Stat(path); err != nil {
		return cli.NewCommandError("attempts export", fmt.Errorf("attempt log %s: %w", path, err))
	}

	store, err := attemptstorage.NewSQLiteStore(&attemptstorage.SQLiteConfig{
		Path:         path,
		MaxOpenConns: 1,
		BusyTimeout:  cfg.AttemptLog.SQLite.BusyTimeout,
	})
	if err != nil {
		return cli.NewCommandError("attempts export", err)
	}
	defer store.Close()

	var w io.Writer = cmd.OutOrStdout()
	if attemptsFlags.out != "" {
		file, err := os.Create(attemptsFlags.out)
		if err != nil {
			return cli.NewCommandError("attempts export", err)
		}
		defer file.Close()
		w = file
	}

	exp := export.New(format)
	ctx := cmd.Context()
	if !attemptsFlags.all {
		records, err := store.Query(ctx, q)
		if err != nil {
			return cli.NewCommandError("attempts export", err)
		}
		return exp.Export(ctx, records, w)
	}

	records, errc := export.Stream(ctx, store, *q, q.Limit)
	if err := exp.ExportStream(ctx, records, w); err != nil {
		return cli.NewCommandError("attempts export", err)
	}
	if err := <-errc; err != nil {
		return cli.NewCommandError("attempts export", err)
	}
	return nil
}
