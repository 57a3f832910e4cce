package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	docStore
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := newPostgresStore(pool)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	s := &PostgresStore{pool: pool}
	s.docStore = docStore{
		d: dialect{
			name:     "postgres",
			numbered: true,
			lockRows: " FOR UPDATE",
			ts:       func(t time.Time) any { return t.UTC() },
			unique: func(err error) bool {
				var pgErr *pgconn.PgError
				return errors.As(err, &pgErr) && pgErr.Code == "23505"
			},
		},
		r:   pgxRunner{pool},
		txn: s.txn,
	}
	return s
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	campaign_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	qualification TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	scored_at     TIMESTAMPTZ,
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaigns (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL REFERENCES leads(id),
	campaign_id    TEXT NOT NULL DEFAULT '',
	template_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	next_action_at TIMESTAMPTZ NOT NULL,
	data           JSONB NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	lead_id      TEXT NOT NULL DEFAULT '',
	campaign_id  TEXT NOT NULL DEFAULT '',
	acknowledged BOOLEAN NOT NULL DEFAULT false,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opportunities (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL UNIQUE REFERENCES leads(id),
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(lead_id, type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_campaign ON alerts(campaign_id, acknowledged);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var leadColumns = []string{"id", "campaign_id", "status", "qualification", "email", "scored_at", "data", "created_at", "updated_at"}

// ImportLeads bulk-loads leads through COPY and skips ids already stored.
func (s *PostgresStore) ImportLeads(ctx context.Context, leads []*model.Lead) (int, error) {
	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		prepareLead(l)
		data, err := json.Marshal(l)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal lead")
		}
		rows = append(rows, []any{
			l.ID, l.CampaignID, string(l.Status), string(l.Qualification), l.ContactEmail(),
			s.tsPtr(l.ScoredAt), string(data), l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import leads")
	}
	return int(n), nil
}

func (s *PostgresStore) txn(ctx context.Context, fn func(runner) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(pgxRunner{tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRunner adapts a pool or a transaction.
type pgxRunner struct{ c pgxConn }

func (r pgxRunner) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.c.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r pgxRunner) query(ctx context.Context, query string, args []any, each func(scanner) error) error {
	rows, err := r.c.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r pgxRunner) queryRow(ctx context.Context, query string, args ...any) scanner {
	return r.c.QueryRow(ctx, query, args...)
}
