package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/storefront-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// busy_timeout is per connection.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stores (
	domain              TEXT PRIMARY KEY,
	company_name        TEXT,
	vertical            TEXT,
	is_platform         INTEGER NOT NULL DEFAULT 0,
	is_premium          INTEGER NOT NULL DEFAULT 0,
	detection_signals   TEXT,
	email               TEXT,
	phone               TEXT,
	street_address      TEXT,
	city                TEXT,
	state               TEXT,
	zip_code            TEXT,
	country             TEXT,
	has_local_delivery  INTEGER NOT NULL DEFAULT 0,
	revenue_estimate    REAL,
	employees_estimate  INTEGER,
	is_uber_serviceable INTEGER,
	uber_check_date     DATETIME,
	raw_data            TEXT,
	discovered_at       DATETIME NOT NULL,
	scraped_at          DATETIME,
	last_updated        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stores_platform ON stores(is_platform, is_premium);
CREATE INDEX IF NOT EXISTS idx_stores_country ON stores(country);

CREATE TABLE IF NOT EXISTS sweeps (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME,
	candidates     INTEGER NOT NULL DEFAULT 0,
	skipped        INTEGER NOT NULL DEFAULT 0,
	processed      INTEGER NOT NULL DEFAULT 0,
	matched        INTEGER NOT NULL DEFAULT 0,
	persisted      INTEGER NOT NULL DEFAULT 0,
	errored        INTEGER NOT NULL DEFAULT 0,
	failed_batches INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sweeps_started_at ON sweeps(started_at);
`

var (
	sqliteSelect = "SELECT " + strings.Join(storeColumns, ", ") + " FROM stores"
	sqliteUpsert = sqliteUpsertSQL()
)

func sqliteUpsertSQL() string {
	marks := make([]string, len(storeColumns))
	sets := make([]string, 0, len(storeColumns)-1)
	for i, c := range storeColumns {
		marks[i] = "?"
		if c != "domain" {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO stores (%s) VALUES (%s) ON CONFLICT(domain) DO UPDATE SET %s",
		strings.Join(storeColumns, ", "), strings.Join(marks, ", "), strings.Join(sets, ", "))
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, domain string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM stores WHERE domain = ?`, domain).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s", domain)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Get(ctx context.Context, domain string) (*model.StoreRecord, error) {
	return getSQLite(ctx, s.db, domain)
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLite(ctx context.Context, q sqliteQuerier, domain string) (*model.StoreRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, sqliteSelect+" WHERE domain = ?", domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get %s", domain)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", domain)
	}
	return rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.StoreRecord) error {
	_, err := s.UpsertBatch(ctx, []model.StoreRecord{rec})
	return err
}

// UpsertBatch reads, merges, and writes every record inside one
// transaction. A failure rolls the whole batch back.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, recs []model.StoreRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	existing := make(map[string]model.StoreRecord, len(recs))
	for _, d := range uniqueDomains(recs) {
		rec, err := getSQLite(ctx, tx, d)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		existing[d] = *rec
	}

	merged := mergeInto(existing, recs, time.Now().UTC())

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range merged {
		args, err := recordArgs(rec)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", rec.Domain)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(merged), nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]model.StoreRecord, error) {
	where, args := buildWhere(f, sqlitePlaceholder)
	page, args := buildPage(f, sqlitePlaceholder, args)

	rows, err := s.db.QueryContext(ctx, sqliteSelect+where+page, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query stores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoreRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate stores")
}

func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f, sqlitePlaceholder)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM stores"+where, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count stores")
	}
	return n, nil
}

// SetServiceability records a coverage check. An unknown result keeps any
// previous verdict but still stamps the check date.
func (s *SQLiteStore) SetServiceability(ctx context.Context, domain string, result model.Serviceability, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET is_uber_serviceable = COALESCE(?, is_uber_serviceable), uber_check_date = ?, last_updated = ? WHERE domain = ?`,
		boolOrNil(result.Bool()), at.UTC(), time.Now().UTC(), domain,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set serviceability %s", domain)
	}
	return checkRowsAffected(res, domain)
}

func (s *SQLiteStore) CreateSweep(ctx context.Context, kind model.SweepKind) (*model.Sweep, error) {
	sw := &model.Sweep{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.SweepStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweeps (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		sw.ID, string(sw.Kind), string(sw.Status), sw.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert sweep")
	}
	return sw, nil
}

func (s *SQLiteStore) CompleteSweep(ctx context.Context, sw *model.Sweep) error {
	finished := time.Now().UTC()
	if sw.FinishedAt != nil {
		finished = sw.FinishedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sweeps SET status = ?, finished_at = ?, candidates = ?, skipped = ?, processed = ?, matched = ?, persisted = ?, errored = ?, failed_batches = ? WHERE id = ?`,
		string(sw.Status), finished, sw.Candidates, sw.Skipped, sw.Processed, sw.Matched,
		sw.Persisted, sw.Errored, sw.FailedBatches, sw.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sweep %s", sw.ID)
	}
	if err := checkRowsAffected(res, sw.ID); err != nil {
		return err
	}
	sw.FinishedAt = &finished
	return nil
}

func (s *SQLiteStore) GetSweep(ctx context.Context, id string) (*model.Sweep, error) {
	sw, err := scanSweep(s.db.QueryRowContext(ctx, `SELECT `+sweepColumns+` FROM sweeps WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get sweep %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sweep %s", id)
	}
	return sw, nil
}

func (s *SQLiteStore) ListSweeps(ctx context.Context, limit int) ([]model.Sweep, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sweepColumns+` FROM sweeps ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sweeps")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sweep")
		}
		out = append(out, *sw)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sweeps")
}

// checkRowsAffected returns ErrNotFound when an UPDATE matched nothing.
func checkRowsAffected(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s", key)
	}
	return nil
}
