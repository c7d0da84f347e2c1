package export

import (
	"context"
	"encoding/json"
	"io"

	"weaver-hq/loom/pkg/attemptlog"
)

// JSONExporter writes a JSON array, or one object per line when
// Lines is set.
type JSONExporter struct {
	Pretty bool
	Lines  bool
}

// NewJSONExporter creates a JSON exporter. Pretty is ignored for lines
// output.
func NewJSONExporter(pretty, lines bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty && !lines, Lines: lines}
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string {
	if e.Lines {
		return "application/x-ndjson"
	}
	return "application/json"
}

// Export implements Exporter.
func (e *JSONExporter) Export(ctx context.Context, records []*attemptlog.Record, w io.Writer) error {
	ch := make(chan *attemptlog.Record, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return e.ExportStream(ctx, ch, w)
}

// ExportStream implements Exporter.
func (e *JSONExporter) ExportStream(ctx context.Context, records <-chan *attemptlog.Record, w io.Writer) error {
	written := 0
	format := FormatJSON
	if e.Lines {
		format = FormatNDJSON
	}
	fail := func(err error) error {
		return &attemptlog.ExportError{Format: string(format), Written: written, Cause: err}
	}
	put := func(s string) error {
		_, err := io.WriteString(w, s)
		return err
	}

	if !e.Lines {
		if err := put("["); err != nil {
			return fail(err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				if e.Lines {
					return nil
				}
				closing := "]"
				if e.Pretty && written > 0 {
					closing = "\n]"
				}
				if err := put(closing + "\n"); err != nil {
					return fail(err)
				}
				return nil
			}

			data, err := e.encode(rec)
			if err != nil {
				return fail(err)
			}
			sep := ""
			switch {
			case e.Lines:
			case written > 0 && e.Pretty:
				sep = ",\n  "
			case written > 0:
				sep = ","
			case e.Pretty:
				sep = "\n  "
			}
			if err := put(sep); err != nil {
				return fail(err)
			}
			if _, err := w.Write(data); err != nil {
				return fail(err)
			}
			if e.Lines {
				if err := put("\n"); err != nil {
					return fail(err)
				}
			}
			written++
		}
	}
}

func (e *JSONExporter) encode(r *attemptlog.Record) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(r, "  ", "  ")
	}
	return json.Marshal(r)
}
