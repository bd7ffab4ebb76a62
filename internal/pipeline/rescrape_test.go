package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

func TestRescrape_FillsMissingStreetOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertBatch(ctx, []model.StoreRecord{
		{Domain: "partial.com", IsPlatform: true, IsPremium: true, Email: "old@partial.com",
			Address: model.Address{City: "Austin", State: "TX", ZipCode: "78701", Country: "US"}},
		{Domain: "done.com", IsPlatform: true,
			Address: model.Address{Street: "1 Main St", City: "Reno", State: "NV", Country: "US"}},
		{Domain: "plain.com"},
		{Domain: "nowhere.com", IsPlatform: true},
	})
	require.NoError(t, err)

	enr := &fakeEnricher{contacts: map[string]model.ContactRecord{
		"partial.com": {
			Email:         "new@partial.com",
			Phone:         "512-555-0100",
			Address:       model.Address{Street: "100 Congress Ave", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
			AddressSource: "about_page",
		},
	}}
	det := &fakeDetector{}

	o := New(det, enr, st, Options{Concurrency: 2})
	sum, err := o.Rescrape(ctx, store.Filter{Country: "US"})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Candidates)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 1, sum.Persisted)
	assert.Equal(t, []string{"partial.com"}, enr.calls())
	assert.Zero(t, det.calls.Load())

	got, err := st.Get(ctx, "partial.com")
	require.NoError(t, err)
	assert.True(t, got.IsPremium)
	assert.Equal(t, "old@partial.com", got.Email, "populated fields are never replaced")
	assert.Equal(t, "512-555-0100", got.Phone)
	assert.Equal(t, "100 Congress Ave", got.Street)
	assert.NotNil(t, got.ScrapedAt)

	sw, err := st.GetSweep(ctx, sum.SweepID)
	require.NoError(t, err)
	assert.Equal(t, model.SweepKindRescrape, sw.Kind)
}

func TestRescrape_WithoutCountryIncludesAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.UpsertBatch(ctx, []model.StoreRecord{
		{Domain: "a.com", IsPlatform: true},
		{Domain: "b.ca", IsPlatform: true, Address: model.Address{City: "Toronto", State: "ON", Country: "CA"}},
	})
	require.NoError(t, err)

	enr := &fakeEnricher{}
	sum, err := New(&fakeDetector{}, enr, st, Options{}).Rescrape(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Zero(t, sum.Matched)
	assert.ElementsMatch(t, []string{"a.com", "b.ca"}, enr.calls())
}

func TestCheckServiceability(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	addr := func(street string) model.Address {
		return model.Address{Street: street, City: "Austin", State: "TX", ZipCode: "78701", Country: "US"}
	}
	_, err := st.UpsertBatch(ctx, []model.StoreRecord{
		{Domain: "yes.com", IsPlatform: true, Address: addr("1 A St")},
		{Domain: "no.com", IsPlatform: true, Address: addr("2 B St")},
		{Domain: "flaky.com", IsPlatform: true, Address: addr("3 C St")},
		{Domain: "nostreet.com", IsPlatform: true},
	})
	require.NoError(t, err)

	checker := new(mockChecker)
	byDomain := func(d string) any {
		return mock.MatchedBy(func(r model.StoreRecord) bool { return r.Domain == d })
	}
	checker.On("Check", mock.Anything, byDomain("yes.com")).Return(model.Serviceable, nil)
	checker.On("Check", mock.Anything, byDomain("no.com")).Return(model.NotServiceable, nil)
	checker.On("Check", mock.Anything, byDomain("flaky.com")).Return(model.Unknown, errors.New("timeout"))

	sum, err := CheckServiceability(ctx, st, checker, store.Filter{}, 2)
	require.NoError(t, err)
	assert.Equal(t, ServiceabilitySummary{Checked: 3, Serviceable: 1, NotServiceable: 1, Unknown: 1}, *sum)
	checker.AssertExpectations(t)

	yes, err := st.Get(ctx, "yes.com")
	require.NoError(t, err)
	require.NotNil(t, yes.IsUberServiceable)
	assert.True(t, *yes.IsUberServiceable)
	assert.NotNil(t, yes.UberCheckDate)

	no, err := st.Get(ctx, "no.com")
	require.NoError(t, err)
	require.NotNil(t, no.IsUberServiceable)
	assert.False(t, *no.IsUberServiceable)

	flaky, err := st.Get(ctx, "flaky.com")
	require.NoError(t, err)
	assert.Nil(t, flaky.IsUberServiceable)

	// Only the unknown store is picked up again.
	again := new(mockChecker)
	again.On("Check", mock.Anything, byDomain("flaky.com")).Return(model.Serviceable, nil)
	sum, err = CheckServiceability(ctx, st, again, store.Filter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
	again.AssertExpectations(t)
}
