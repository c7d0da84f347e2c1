package export

import (
	"context"
	"fmt"
	"io"

	"weaver-hq/loom/pkg/attemptlog"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat accepts csv, json and ndjson. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatNDJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json or ndjson)", s)
	}
}

// Exporter encodes attempt records.
type Exporter interface {
	Export(ctx context.Context, records []*attemptlog.Record, w io.Writer) error
	ExportStream(ctx context.Context, records <-chan *attemptlog.Record, w io.Writer) error
	ContentType() string
}

// New returns the exporter for f.
func New(f Format) Exporter {
	switch f {
	case FormatCSV:
		return NewCSVExporter(true)
	case FormatNDJSON:
		return NewJSONExporter(false, true)
	default:
		return NewJSONExporter(false, false)
	}
}

// Stream pages through store with q and sends every matching record.
// Both channels are closed when the query is exhausted, fails or ctx ends.
// q.Offset is the starting point and q.Limit the page size; a zero page
// size uses attemptlog.DefaultQueryLimit.
func Stream(ctx context.Context, store attemptlog.Store, q attemptlog.Query, pageSize int) (<-chan *attemptlog.Record, <-chan error) {
	if pageSize <= 0 {
		pageSize = attemptlog.DefaultQueryLimit
	}
	out := make(chan *attemptlog.Record, pageSize)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		q.Limit = pageSize
		for {
			page, err := store.Query(ctx, &q)
			if err != nil {
				errc <- err
				return
			}
			for _, rec := range page {
				select {
				case out <- rec:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			q.Offset += len(page)
		}
	}()
	return out, errc
}
