package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"weaver-hq/loom/pkg/attemptlog"
)

// flushEvery is how many streamed rows are written between flushes.
const flushEvery = 100

var csvHeader = []string{
	"id", "request_id", "timestamp", "channel_id", "model", "mapped_model",
	"attempt", "outcome", "status_code", "error", "latency_ms",
	"prompt_tokens", "completion_tokens", "cost", "streamed",
}

// CSVExporter writes one row per attempt.
type CSVExporter struct {
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Export implements Exporter.
func (e *CSVExporter) Export(ctx context.Context, records []*attemptlog.Record, w io.Writer) error {
	ch := make(chan *attemptlog.Record, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return e.ExportStream(ctx, ch, w)
}

// ExportStream implements Exporter.
func (e *CSVExporter) ExportStream(ctx context.Context, records <-chan *attemptlog.Record, w io.Writer) error {
	cw := csv.NewWriter(w)
	written := 0
	fail := func(err error) error {
		return &attemptlog.ExportError{Format: string(FormatCSV), Written: written, Cause: err}
	}

	if e.IncludeHeader {
		if err := cw.Write(csvHeader); err != nil {
			return fail(err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			cw.Flush()
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				cw.Flush()
				if err := cw.Error(); err != nil {
					return fail(err)
				}
				return nil
			}
			if err := cw.Write(row(rec)); err != nil {
				return fail(err)
			}
			written++
			if written%flushEvery == 0 {
				cw.Flush()
				if err := cw.Error(); err != nil {
					return fail(err)
				}
			}
		}
	}
}

func row(r *attemptlog.Record) []string {
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	status := ""
	if r.StatusCode != 0 {
		status = strconv.Itoa(r.StatusCode)
	}
	return []string{
		r.ID,
		r.RequestID,
		ts,
		r.ChannelID,
		r.Model,
		r.MappedModel,
		strconv.Itoa(r.Attempt),
		string(r.Outcome),
		status,
		r.Error,
		strconv.FormatInt(r.Latency.Milliseconds(), 10),
		strconv.Itoa(r.PromptTokens),
		strconv.Itoa(r.CompletionTokens),
		strconv.FormatFloat(r.Cost, 'f', 6, 64),
		strconv.FormatBool(r.Streamed),
	}
}
