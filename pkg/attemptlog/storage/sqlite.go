package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"weaver-hq/loom/pkg/attemptlog"
	"weaver-hq/loom/pkg/domain"
)

const backendSQLite = "sqlite"

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long a writer waits for the database lock.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/attempts.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements attemptlog.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at
// config.Path.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 4
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, attemptlog.NewStorageError(backendSQLite, "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "attemptlog.storage.sqlite"),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("attempt log storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return attemptlog.NewStorageError(backendSQLite, "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return attemptlog.NewStorageError(backendSQLite, "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return attemptlog.NewStorageError(backendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return attemptlog.NewStorageError(backendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return attemptlog.NewStorageError(backendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return attemptlog.NewStorageError(backendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store implements attemptlog.Store.
func (s *SQLiteStore) Store(ctx context.Context, rec *attemptlog.Record) error {
	_, err := s.db.ExecContext(ctx, insertAttempt,
		rec.ID, rec.RequestID, rec.ChannelID, rec.Model, nullString(rec.MappedModel), rec.Attempt,
		string(rec.Outcome), rec.StatusCode, nullString(rec.Error),
		rec.Latency.Milliseconds(), rec.PromptTokens, rec.CompletionTokens, rec.Cost, rec.Streamed,
		unixNano(rec.Timestamp), unixNano(rec.RecordedAt),
	)
	if err != nil {
		return attemptlog.NewStorageError(backendSQLite, "store", err)
	}
	return nil
}

// Query implements attemptlog.Store.
func (s *SQLiteStore) Query(ctx context.Context, q *attemptlog.Query) ([]*attemptlog.Record, error) {
	var query attemptlog.Query
	if q != nil {
		query = *q
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(&query)
	stmt := "SELECT " + selectColumns + " FROM attempts" + where +
		fmt.Sprintf(" ORDER BY ts %s, rowid %s LIMIT %d OFFSET %d",
			strings.ToUpper(query.Order), strings.ToUpper(query.Order), query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, attemptlog.NewStorageError(backendSQLite, "query", err)
	}
	defer rows.Close()

	records := []*attemptlog.Record{}
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, attemptlog.NewStorageError(backendSQLite, "scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, attemptlog.NewStorageError(backendSQLite, "query", err)
	}
	return records, nil
}

// Count implements attemptlog.Store.
func (s *SQLiteStore) Count(ctx context.Context, q *attemptlog.Query) (int64, error) {
	where, args := buildWhereClause(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts"+where, args...).Scan(&n); err != nil {
		return 0, attemptlog.NewStorageError(backendSQLite, "count", err)
	}
	return n, nil
}

// Delete implements attemptlog.Store.
func (s *SQLiteStore) Delete(ctx context.Context, q *attemptlog.Query) (int64, error) {
	where, args := buildWhereClause(q)
	res, err := s.db.ExecContext(ctx, "DELETE FROM attempts"+where, args...)
	if err != nil {
		return 0, attemptlog.NewStorageError(backendSQLite, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, attemptlog.NewStorageError(backendSQLite, "delete", err)
	}
	return n, nil
}

// Close implements attemptlog.Store.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return attemptlog.NewStorageError(backendSQLite, "close", err)
	}
	s.logger.Info("attempt log storage closed")
	return nil
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(q *attemptlog.Query) (string, []any) {
	if q == nil {
		return "", nil
	}
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if q.RequestID != "" {
		add("request_id = ?", q.RequestID)
	}
	if q.ChannelID != "" {
		add("channel_id = ?", q.ChannelID)
	}
	if q.Model != "" {
		add("model = ?", q.Model)
	}
	if q.Outcome != "" {
		add("outcome = ?", string(q.Outcome))
	}
	if q.Since != nil {
		add("ts >= ?", unixNano(*q.Since))
	}
	if q.Until != nil {
		add("ts <= ?", unixNano(*q.Until))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*attemptlog.Record, error) {
	var (
		rec                 attemptlog.Record
		mapped, errMsg      sql.NullString
		statusCode          sql.NullInt64
		outcome             string
		latencyMs, ts, recd int64
	)
	err := rows.Scan(
		&rec.ID, &rec.RequestID, &rec.ChannelID, &rec.Model, &mapped, &rec.Attempt,
		&outcome, &statusCode, &errMsg,
		&latencyMs, &rec.PromptTokens, &rec.CompletionTokens, &rec.Cost, &rec.Streamed,
		&ts, &recd,
	)
	if err != nil {
		return nil, err
	}

	rec.MappedModel = mapped.String
	rec.Error = errMsg.String
	rec.StatusCode = int(statusCode.Int64)
	rec.Outcome = domain.OutcomeKind(outcome)
	rec.Latency = time.Duration(latencyMs) * time.Millisecond
	rec.Timestamp = fromUnixNano(ts)
	rec.RecordedAt = fromUnixNano(recd)
	return &rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// unixNano maps the zero time to MinInt64 so it sorts first; UnixNano of
// the zero time is undefined.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == math.MinInt64 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
