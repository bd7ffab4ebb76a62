// Package store persists storefront records and sweep ledgers to SQLite or
// Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storefront-cli/internal/model"
)

// ErrNotFound is returned when a domain or sweep has no row.
var ErrNotFound = eris.New("store: not found")

// Filter selects stores for export, rescrape, and serviceability checks.
// Nil pointers and empty strings leave the dimension unconstrained.
type Filter struct {
	Platform  *bool
	Premium   *bool
	Country   string
	State     string
	HasStreet *bool

	// Serviceable matches a recorded coverage result.
	Serviceable *bool

	// Unchecked matches stores whose coverage is still unknown.
	Unchecked bool

	Limit  int
	Offset int
}

// Store is the Store Repository. Writes are keyed on the normalized domain:
// repeated writes for the same domain merge into one row and never regress
// a populated field to empty.
type Store interface {
	Exists(ctx context.Context, domain string) (bool, error)
	Get(ctx context.Context, domain string) (*model.StoreRecord, error)
	Upsert(ctx context.Context, rec model.StoreRecord) error
	// UpsertBatch merges and writes all records in one transaction and
	// returns how many rows were written.
	UpsertBatch(ctx context.Context, recs []model.StoreRecord) (int, error)
	Query(ctx context.Context, f Filter) ([]model.StoreRecord, error)
	Count(ctx context.Context, f Filter) (int, error)
	SetServiceability(ctx context.Context, domain string, result model.Serviceability, at time.Time) error

	CreateSweep(ctx context.Context, kind model.SweepKind) (*model.Sweep, error)
	CompleteSweep(ctx context.Context, sweep *model.Sweep) error
	GetSweep(ctx context.Context, id string) (*model.Sweep, error)
	ListSweeps(ctx context.Context, limit int) ([]model.Sweep, error)

	Migrate(ctx context.Context) error
	Close() error
}

// BoolPtr is a convenience for building filters.
func BoolPtr(v bool) *bool {
	return &v
}
