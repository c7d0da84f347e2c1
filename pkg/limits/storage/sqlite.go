package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteLedger is a Ledger backed by a SQLite file. It runs in WAL mode
// with a single connection and checkpoints the WAL periodically.
type SQLiteLedger struct {
	db                 *sql.DB
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once

	appendStmt  *sql.Stmt
	getStmt     *sql.Stmt
	sinceStmt   *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite ledger.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteLedger opens (and creates if needed) a ledger at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	return NewSQLiteLedgerWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteLedgerWithConfig opens a ledger with custom settings.
func NewSQLiteLedgerWithConfig(cfg SQLiteConfig) (*SQLiteLedger, error) {
	if cfg.Path == "" {
		return nil, errors.New("ledger path cannot be empty")
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &SQLiteLedger{
		db:                 db,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	if err := l.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare ledger statements: %w", err)
	}

	go l.checkpointLoop()
	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS spend_ledger (
		request_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		api_key_id TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		cost REAL NOT NULL,
		committed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_spend_ledger_committed_at ON spend_ledger(committed_at);
	CREATE INDEX IF NOT EXISTS idx_spend_ledger_tenant ON spend_ledger(tenant_id, committed_at);
	`)
	return err
}

func (l *SQLiteLedger) prepareStatements() error {
	var err error

	l.appendStmt, err = l.db.Prepare(`
		INSERT INTO spend_ledger (request_id, tenant_id, api_key_id, channel_id, model, outcome,
			prompt_tokens, completion_tokens, cost, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	const columns = `request_id, tenant_id, api_key_id, channel_id, model, outcome,
		prompt_tokens, completion_tokens, cost, committed_at`

	l.getStmt, err = l.db.Prepare(`SELECT ` + columns + ` FROM spend_ledger WHERE request_id = ?`)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	l.sinceStmt, err = l.db.Prepare(`SELECT ` + columns + ` FROM spend_ledger
		WHERE committed_at >= ? ORDER BY committed_at, request_id`)
	if err != nil {
		return fmt.Errorf("since: %w", err)
	}

	l.cleanupStmt, err = l.db.Prepare(`DELETE FROM spend_ledger WHERE committed_at < ?`)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, e Entry) (bool, error) {
	if err := validate(e); err != nil {
		return false, err
	}
	if e.CommittedAt.IsZero() {
		e.CommittedAt = time.Now()
	}

	res, err := l.appendStmt.ExecContext(ctx,
		e.RequestID, e.TenantID, e.APIKeyID, e.ChannelID, e.Model, e.Outcome,
		e.PromptTokens, e.CompletionTokens, e.Cost, e.CommittedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, requestID string) (*Entry, error) {
	e, err := scanEntry(l.getStmt.QueryRowContext(ctx, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	return &e, nil
}

// Since implements Ledger.
func (l *SQLiteLedger) Since(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := l.sinceStmt.QueryContext(ctx, unixNano(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return out, nil
}

// Cleanup implements Ledger.
func (l *SQLiteLedger) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := l.cleanupStmt.ExecContext(ctx, unixNano(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Close stops the checkpoint loop, truncates the WAL and closes the
// database. It is idempotent.
func (l *SQLiteLedger) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		close(l.done)
		for _, st := range []*sql.Stmt{l.appendStmt, l.getStmt, l.sinceStmt, l.cleanupStmt} {
			if st != nil {
				st.Close()
			}
		}
		_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = l.db.Close()
	})
	return closeErr
}

func (l *SQLiteLedger) checkpointLoop() {
	ticker := time.NewTicker(l.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = l.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-l.done:
			return
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e  Entry
		at int64
	)
	err := s.Scan(&e.RequestID, &e.TenantID, &e.APIKeyID, &e.ChannelID, &e.Model, &e.Outcome,
		&e.PromptTokens, &e.CompletionTokens, &e.Cost, &at)
	if err != nil {
		return Entry{}, err
	}
	e.CommittedAt = time.Unix(0, at)
	return e, nil
}

// unixNano maps the zero time to the smallest timestamp, since UnixNano is
// undefined before 1678.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixNano()
}
