package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/storefront-cli/internal/model"
)

func TestBuildWhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		ph     placeholder
		want   string
		args   []any
	}{
		{
			name: "unconstrained",
			ph:   sqlitePlaceholder,
		},
		{
			name:   "premium US with street",
			filter: Filter{Premium: BoolPtr(true), Country: "us", HasStreet: BoolPtr(true)},
			ph:     postgresPlaceholder,
			want:   " WHERE is_premium = $1 AND UPPER(country) = $2 AND street_address IS NOT NULL",
			args:   []any{true, "US"},
		},
		{
			name:   "platform missing street",
			filter: Filter{Platform: BoolPtr(true), HasStreet: BoolPtr(false)},
			ph:     sqlitePlaceholder,
			want:   " WHERE is_platform = ? AND street_address IS NULL",
			args:   []any{true},
		},
		{
			name:   "unchecked serviceability by state",
			filter: Filter{State: "tx", Unchecked: true},
			ph:     postgresPlaceholder,
			want:   " WHERE UPPER(state) = $1 AND is_uber_serviceable IS NULL",
			args:   []any{"TX"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, args := buildWhere(tt.filter, tt.ph)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildPage(t *testing.T) {
	t.Parallel()

	clause, args := buildPage(Filter{}, postgresPlaceholder, nil)
	assert.Equal(t, " ORDER BY domain", clause)
	assert.Empty(t, args)

	clause, args = buildPage(Filter{Limit: 10, Offset: 20}, postgresPlaceholder, []any{true})
	assert.Equal(t, " ORDER BY domain LIMIT $2 OFFSET $3", clause)
	assert.Equal(t, []any{true, 10, 20}, args)
}

func TestMergeInto(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)

	existing := map[string]model.StoreRecord{
		"old.com": {Domain: "old.com", IsPlatform: true, Email: "a@old.com", DiscoveredAt: earlier, LastUpdated: earlier},
	}
	recs := []model.StoreRecord{
		{Domain: "new.com", IsPlatform: true},
		{Domain: "old.com", IsPlatform: true, Phone: "555-0100"},
		{Domain: "new.com", IsPlatform: true, Email: "b@new.com"},
	}

	out := mergeInto(existing, recs, now)
	assert.Len(t, out, 2)

	assert.Equal(t, "new.com", out[0].Domain)
	assert.Equal(t, "b@new.com", out[0].Email)
	assert.Equal(t, now, out[0].DiscoveredAt)

	assert.Equal(t, "old.com", out[1].Domain)
	assert.Equal(t, "a@old.com", out[1].Email)
	assert.Equal(t, "555-0100", out[1].Phone)
	assert.Equal(t, earlier, out[1].DiscoveredAt)
	assert.Equal(t, now, out[1].LastUpdated)
}

func TestRecordArgs_NullsEmptyValues(t *testing.T) {
	t.Parallel()

	args, err := recordArgs(model.StoreRecord{Domain: "a.com"})
	assert.NoError(t, err)
	assert.Len(t, args, len(storeColumns))
	assert.Equal(t, "a.com", args[0])
	for i, c := range storeColumns {
		switch c {
		case "company_name", "email", "street_address", "detection_signals", "raw_data", "revenue_estimate", "is_uber_serviceable", "scraped_at":
			assert.Nil(t, args[i], c)
		}
	}
}
