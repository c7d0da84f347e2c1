// Package export writes attempt records as CSV, a JSON array or
// newline-delimited JSON.
//
// Exporters accept either a slice or a channel of records. Stream pages
// through a store and feeds such a channel, so an export of the whole log
// never holds more than one page in memory:
//
//	records, errc := export.Stream(ctx, store, q, 500)
//	if err := export.New(export.FormatCSV).ExportStream(ctx, records, w); err != nil {
//		return err
//	}
//	return <-errc
package export
