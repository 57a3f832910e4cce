package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// sqliteTimeFormat is fixed width so text comparison orders correctly.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	docStore
	db *sql.DB
	mu sync.Mutex // serializes reserve transactions
}

// NewSQLite opens a SQLite database at the given path in WAL mode. The
// pragmas ride on the DSN so every pooled connection gets them.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	s := &SQLiteStore{db: db}
	s.docStore = docStore{
		d: dialect{
			name: "sqlite",
			ts:   func(t time.Time) any { return t.UTC().Format(sqliteTimeFormat) },
			unique: func(err error) bool {
				return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
			},
		},
		r:   sqlRunner{db},
		txn: s.txn,
	}
	return s, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	campaign_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	qualification TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	scored_at     TEXT,
	data          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS campaigns (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL,
	campaign_id    TEXT NOT NULL DEFAULT '',
	template_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	next_action_at TEXT NOT NULL,
	data           TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	lead_id      TEXT NOT NULL DEFAULT '',
	campaign_id  TEXT NOT NULL DEFAULT '',
	acknowledged INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunities (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS send_counters (
	campaign_id TEXT NOT NULL,
	day         TEXT NOT NULL,
	sends       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (campaign_id, day)
);

CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_scored_at ON leads(scored_at);
CREATE INDEX IF NOT EXISTS idx_executions_due ON workflow_executions(status, next_action_at);
CREATE INDEX IF NOT EXISTS idx_executions_lead ON workflow_executions(lead_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_live ON workflow_executions(lead_id)
	WHERE status IN ('pending', 'active', 'paused');
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(lead_id, type, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_campaign ON alerts(campaign_id, acknowledged);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) txn(ctx context.Context, fn func(runner) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(sqlRunner{tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlRunner adapts *sql.DB and *sql.Tx.
type sqlRunner struct{ c sqlConn }

func (r sqlRunner) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.c.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r sqlRunner) query(ctx context.Context, query string, args []any, each func(scanner) error) error {
	rows, err := r.c.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r sqlRunner) queryRow(ctx context.Context, query string, args ...any) scanner {
	return r.c.QueryRowContext(ctx, query, args...)
}
