package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storesCfg = UpsertConfig{
	Table:        "stores",
	Columns:      []string{"domain", "email"},
	ConflictKeys: []string{"domain"},
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, storesCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", ConflictKeys: []string{"domain"}}, [][]any{{"a.com"}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", Columns: []string{"domain"}}, [][]any{{"a.com"}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestBulkUpsert_InTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"a.com", "hi@a.com"}, {"b.com", nil}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_stores" \(LIKE "stores" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, []string{"domain", "email"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "stores" \("domain", "email"\) SELECT .* ON CONFLICT \("domain"\) DO UPDATE SET "email" = EXCLUDED."email"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	n, err := BulkUpsert(ctx, tx, storesCfg, rows)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, []string{"domain", "email"}).
		WillReturnError(errors.New("copy broke"))

	_, err = BulkUpsert(context.Background(), mock, storesCfg, [][]any{{"a.com", nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_ExplicitUpdateCols(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "leads.stores",
		Columns:      []string{"domain", "email", "discovered_at"},
		ConflictKeys: []string{"domain"},
		UpdateCols:   []string{"email"},
	}
	got := UpsertSQL(cfg, "src")
	assert.Equal(t, `INSERT INTO "leads"."stores" ("domain", "email", "discovered_at") SELECT "domain", "email", "discovered_at" FROM "src" ON CONFLICT ("domain") DO UPDATE SET "email" = EXCLUDED."email"`, got)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, sanitizeTable("simple"))
	assert.Equal(t, `"leads"."stores"`, sanitizeTable("leads.stores"))
}
