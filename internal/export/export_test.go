package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	revenue := 2e6
	_, err = st.UpsertBatch(ctx, []model.StoreRecord{
		{
			Domain: "acme.com", CompanyName: "Acme", IsPlatform: true, IsPremium: true,
			DetectionSignals: []string{"fingerprint:cdn.shopify.com", "headless_storefront"},
			Email:            "hi@acme.com",
			Address:          model.Address{Street: "100 Congress Ave", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
			RevenueEstimate:  &revenue,
		},
		{Domain: "basic.com", IsPlatform: true, Address: model.Address{City: "Reno", State: "NV", Country: "US"}},
		{Domain: "canada.ca", IsPlatform: true, Address: model.Address{Street: "1 Bay St", City: "Toronto", State: "ON", Country: "CA"}},
		{Domain: "notshop.com"},
	})
	require.NoError(t, err)
	require.NoError(t, st.SetServiceability(ctx, "acme.com", model.Serviceable, time.Now()))
	return st
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", "leads.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("JSON", "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("", "leads")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("parquet", "")
	assert.Error(t, err)
}

func TestOptionsFilter(t *testing.T) {
	f := Options{PremiumOnly: true, ServiceableOnly: true, Country: "US", WithAddress: true, Limit: 5}.Filter()
	assert.Equal(t, store.Filter{
		Platform:    store.BoolPtr(true),
		Premium:     store.BoolPtr(true),
		Serviceable: store.BoolPtr(true),
		HasStreet:   store.BoolPtr(true),
		Country:     "US",
		Limit:       5,
	}, f)
}

func TestWrite_CSVOnlyPlatformStores(t *testing.T) {
	st := seededStore(t)

	var buf bytes.Buffer
	n, err := Write(context.Background(), st, Options{}, FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, "acme.com", rows[1][0])
	assert.Equal(t, "true", rows[1][3])
	assert.Equal(t, "fingerprint:cdn.shopify.com;headless_storefront", rows[1][4])
	assert.Equal(t, "2000000", rows[1][13])
	assert.Equal(t, "true", rows[1][15])
	assert.Equal(t, "", rows[2][7], "basic.com has no street")
}

func TestWrite_Filters(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := Write(ctx, st, Options{WithAddress: true, Country: "us"}, FormatJSON, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var recs []model.StoreRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "acme.com", recs[0].Domain)
	assert.Equal(t, "100 Congress Ave", recs[0].Street)

	buf.Reset()
	n, err = Write(ctx, st, Options{ServiceableOnly: true, PremiumOnly: true}, FormatJSON, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	buf.Reset()
	n, err = Write(ctx, st, Options{Country: "DE"}, FormatJSON, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.JSONEq(t, `[]`, buf.String())
}

func TestToFile_XLSX(t *testing.T) {
	st := seededStore(t)
	path := filepath.Join(t.TempDir(), "leads.xlsx")

	n, err := ToFile(context.Background(), st, Options{PremiumOnly: true}, FormatXLSX, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet := f.Sheet["stores"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "domain", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "acme.com", sheet.Rows[1].Cells[0].String())
}
