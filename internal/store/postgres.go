package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/storefront-cli/internal/db"
	"github.com/sells-group/storefront-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	postgresSelect = "SELECT " + postgresColumnList() + " FROM stores"

	storesUpsert = db.UpsertConfig{
		Table:        "stores",
		Columns:      storeColumns,
		ConflictKeys: []string{"domain"},
	}
)

// postgresColumnList selects JSONB columns as text so they scan like the
// SQLite TEXT columns.
func postgresColumnList() string {
	cols := make([]string, len(storeColumns))
	for i, c := range storeColumns {
		switch c {
		case "detection_signals", "raw_data":
			cols[i] = c + "::text"
		default:
			cols[i] = c
		}
	}
	return strings.Join(cols, ", ")
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stores (
	domain              TEXT PRIMARY KEY,
	company_name        TEXT,
	vertical            TEXT,
	is_platform         BOOLEAN NOT NULL DEFAULT false,
	is_premium          BOOLEAN NOT NULL DEFAULT false,
	detection_signals   JSONB,
	email               TEXT,
	phone               TEXT,
	street_address      TEXT,
	city                TEXT,
	state               TEXT,
	zip_code            TEXT,
	country             TEXT,
	has_local_delivery  BOOLEAN NOT NULL DEFAULT false,
	revenue_estimate    DOUBLE PRECISION,
	employees_estimate  BIGINT,
	is_uber_serviceable BOOLEAN,
	uber_check_date     TIMESTAMPTZ,
	raw_data            JSONB,
	discovered_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	scraped_at          TIMESTAMPTZ,
	last_updated        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stores_platform ON stores(is_platform, is_premium);
CREATE INDEX IF NOT EXISTS idx_stores_country ON stores(country);
CREATE INDEX IF NOT EXISTS idx_stores_unchecked ON stores(domain) WHERE is_uber_serviceable IS NULL;

CREATE TABLE IF NOT EXISTS sweeps (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ,
	candidates     INTEGER NOT NULL DEFAULT 0,
	skipped        INTEGER NOT NULL DEFAULT 0,
	processed      INTEGER NOT NULL DEFAULT 0,
	matched        INTEGER NOT NULL DEFAULT 0,
	persisted      INTEGER NOT NULL DEFAULT 0,
	errored        INTEGER NOT NULL DEFAULT 0,
	failed_batches INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sweeps_started_at ON sweeps(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, domain string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stores WHERE domain = $1)`, domain).Scan(&ok)
	return ok, eris.Wrapf(err, "postgres: exists %s", domain)
}

func (s *PostgresStore) Get(ctx context.Context, domain string) (*model.StoreRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, postgresSelect+` WHERE domain = $1`, domain))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s", domain)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", domain)
	}
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec model.StoreRecord) error {
	_, err := s.UpsertBatch(ctx, []model.StoreRecord{rec})
	return err
}

// UpsertBatch locks the existing rows for the batch, merges in Go, and
// writes the result through a COPY-backed upsert, all in one transaction.
func (s *PostgresStore) UpsertBatch(ctx context.Context, recs []model.StoreRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, postgresSelect+` WHERE domain = ANY($1) FOR UPDATE`, uniqueDomains(recs))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: lock existing stores")
	}
	existing := make(map[string]model.StoreRecord, len(recs))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan existing store")
		}
		existing[rec.Domain] = *rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: iterate existing stores")
	}

	merged := mergeInto(existing, recs, time.Now().UTC())
	data := make([][]any, 0, len(merged))
	for _, rec := range merged {
		args, err := recordArgs(rec)
		if err != nil {
			return 0, err
		}
		data = append(data, args)
	}

	if _, err := db.BulkUpsert(ctx, tx, storesUpsert, data); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert stores")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return len(merged), nil
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]model.StoreRecord, error) {
	where, args := buildWhere(f, postgresPlaceholder)
	page, args := buildPage(f, postgresPlaceholder, args)

	rows, err := s.pool.Query(ctx, postgresSelect+where+page, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query stores")
	}
	defer rows.Close()

	var out []model.StoreRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate stores")
}

func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f, postgresPlaceholder)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stores`+where, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count stores")
}

func (s *PostgresStore) SetServiceability(ctx context.Context, domain string, result model.Serviceability, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stores SET is_uber_serviceable = COALESCE($1, is_uber_serviceable), uber_check_date = $2, last_updated = now() WHERE domain = $3`,
		result.Bool(), at.UTC(), domain,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set serviceability %s", domain)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: set serviceability %s", domain)
	}
	return nil
}

func (s *PostgresStore) CreateSweep(ctx context.Context, kind model.SweepKind) (*model.Sweep, error) {
	sw := &model.Sweep{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.SweepStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sweeps (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		sw.ID, string(sw.Kind), string(sw.Status), sw.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert sweep")
	}
	return sw, nil
}

func (s *PostgresStore) CompleteSweep(ctx context.Context, sw *model.Sweep) error {
	finished := time.Now().UTC()
	if sw.FinishedAt != nil {
		finished = sw.FinishedAt.UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sweeps SET status = $1, finished_at = $2, candidates = $3, skipped = $4, processed = $5, matched = $6, persisted = $7, errored = $8, failed_batches = $9 WHERE id = $10`,
		string(sw.Status), finished, sw.Candidates, sw.Skipped, sw.Processed, sw.Matched,
		sw.Persisted, sw.Errored, sw.FailedBatches, sw.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sweep %s", sw.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: complete sweep %s", sw.ID)
	}
	sw.FinishedAt = &finished
	return nil
}

func (s *PostgresStore) GetSweep(ctx context.Context, id string) (*model.Sweep, error) {
	sw, err := scanSweep(s.pool.QueryRow(ctx, `SELECT `+sweepColumns+` FROM sweeps WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get sweep %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sweep %s", id)
	}
	return sw, nil
}

func (s *PostgresStore) ListSweeps(ctx context.Context, limit int) ([]model.Sweep, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+sweepColumns+` FROM sweeps ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sweeps")
	}
	defer rows.Close()

	var out []model.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sweep")
		}
		out = append(out, *sw)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sweeps")
}
