// Package query turns URL query parameters and CLI flags into an
// attemptlog.Query.
//
// Times accept RFC 3339 or a duration meaning "that long ago", so
// since=1h selects the last hour.
package query
