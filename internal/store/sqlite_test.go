package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storefront-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func premiumRecord() model.StoreRecord {
	revenue := 1.5e6
	return model.StoreRecord{
		Domain:           "acme.com",
		CompanyName:      "Acme Goods",
		IsPlatform:       true,
		IsPremium:        true,
		DetectionSignals: []string{"fingerprint:cdn.shopify.com", "custom_checkout_domain", "headless_storefront"},
		Email:            "hi@acme.com",
		Address:          model.Address{City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
		RevenueEstimate:  &revenue,
		RawData:          map[string]string{"detection_method": "cdn.shopify.com"},
	}
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, premiumRecord()))

	got, err := st.Get(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme Goods", got.CompanyName)
	assert.True(t, got.IsPlatform)
	assert.True(t, got.IsPremium)
	assert.Equal(t, []string{"fingerprint:cdn.shopify.com", "custom_checkout_domain", "headless_storefront"}, got.DetectionSignals)
	assert.Equal(t, "Austin", got.City)
	assert.Empty(t, got.Phone)
	require.NotNil(t, got.RevenueEstimate)
	assert.InDelta(t, 1.5e6, *got.RevenueEstimate, 0.01)
	assert.Nil(t, got.EmployeesEstimate)
	assert.Nil(t, got.IsUberServiceable)
	assert.Equal(t, "cdn.shopify.com", got.RawData["detection_method"])
	assert.False(t, got.DiscoveredAt.IsZero())

	ok, err := st.Exists(ctx, "acme.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Exists(ctx, "other.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Get(context.Background(), "missing.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpsertNeverRegresses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, premiumRecord()))
	first, err := st.Get(ctx, "acme.com")
	require.NoError(t, err)

	// A later, emptier verdict for the same domain.
	require.NoError(t, st.Upsert(ctx, model.StoreRecord{
		Domain:  "acme.com",
		Phone:   "(512) 555-0100",
		Address: model.Address{Street: "100 Congress Ave", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
	}))

	got, err := st.Get(ctx, "acme.com")
	require.NoError(t, err)
	assert.True(t, got.IsPlatform)
	assert.True(t, got.IsPremium)
	assert.Equal(t, "Acme Goods", got.CompanyName)
	assert.Equal(t, "hi@acme.com", got.Email)
	assert.Equal(t, "(512) 555-0100", got.Phone)
	assert.Equal(t, "100 Congress Ave", got.Street)
	assert.Len(t, got.DetectionSignals, 3)
	assert.True(t, got.DiscoveredAt.Equal(first.DiscoveredAt))

	n, err := st.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_UpsertBatchDuplicatesInBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertBatch(ctx, []model.StoreRecord{
		{Domain: "a.com", IsPlatform: true, Email: "x@a.com"},
		{Domain: "b.com"},
		{Domain: "a.com", Phone: "555"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.Get(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, "x@a.com", got.Email)
	assert.Equal(t, "555", got.Phone)

	n, err = st.UpsertBatch(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Query(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertBatch(ctx, []model.StoreRecord{
		premiumRecord(),
		{Domain: "plain.com", IsPlatform: true, Address: model.Address{Street: "1 Main St", City: "Reno", State: "NV", Country: "US"}},
		{Domain: "canada.ca", IsPlatform: true, Address: model.Address{Street: "1 Bay St", City: "Toronto", State: "ON", Country: "CA"}},
		{Domain: "nope.com"},
	})
	require.NoError(t, err)

	all, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "acme.com", all[0].Domain)

	premium, err := st.Query(ctx, Filter{Premium: BoolPtr(true)})
	require.NoError(t, err)
	require.Len(t, premium, 1)
	assert.Equal(t, "acme.com", premium[0].Domain)

	noStreet, err := st.Query(ctx, Filter{Platform: BoolPtr(true), HasStreet: BoolPtr(false)})
	require.NoError(t, err)
	require.Len(t, noStreet, 1)
	assert.Equal(t, "acme.com", noStreet[0].Domain)

	us, err := st.Query(ctx, Filter{Platform: BoolPtr(true), Country: "us"})
	require.NoError(t, err)
	assert.Len(t, us, 2)

	page, err := st.Query(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "canada.ca", page[0].Domain)
	assert.Equal(t, "nope.com", page[1].Domain)
}

func TestSQLite_SetServiceability(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, premiumRecord()))

	checked := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SetServiceability(ctx, "acme.com", model.Serviceable, checked))

	got, err := st.Get(ctx, "acme.com")
	require.NoError(t, err)
	require.NotNil(t, got.IsUberServiceable)
	assert.True(t, *got.IsUberServiceable)
	require.NotNil(t, got.UberCheckDate)
	assert.True(t, got.UberCheckDate.Equal(checked))

	// Unknown keeps the previous verdict.
	require.NoError(t, st.SetServiceability(ctx, "acme.com", model.Unknown, checked.Add(time.Hour)))
	got, err = st.Get(ctx, "acme.com")
	require.NoError(t, err)
	require.NotNil(t, got.IsUberServiceable)
	assert.True(t, *got.IsUberServiceable)

	unchecked, err := st.Query(ctx, Filter{Unchecked: true})
	require.NoError(t, err)
	assert.Empty(t, unchecked)

	err = st.SetServiceability(ctx, "missing.com", model.NotServiceable, checked)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Sweeps(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sw, err := st.CreateSweep(ctx, model.SweepKindDiscover)
	require.NoError(t, err)
	assert.Equal(t, model.SweepStatusRunning, sw.Status)

	sw.Status = model.SweepStatusComplete
	sw.SweepCounts = model.SweepCounts{Candidates: 10, Skipped: 2, Processed: 8, Matched: 3, Persisted: 8}
	require.NoError(t, st.CompleteSweep(ctx, sw))
	require.NotNil(t, sw.FinishedAt)

	got, err := st.GetSweep(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepKindDiscover, got.Kind)
	assert.Equal(t, model.SweepStatusComplete, got.Status)
	assert.Equal(t, sw.SweepCounts, got.SweepCounts)
	require.NotNil(t, got.FinishedAt)

	list, err := st.ListSweeps(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = st.GetSweep(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
