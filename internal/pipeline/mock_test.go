package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

// --- Detector fake ---

// fakeDetector returns canned verdicts by domain and tracks concurrency.
type fakeDetector struct {
	verdicts map[string]model.Detection
	delay    time.Duration

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (f *fakeDetector) Detect(_ context.Context, target domain.Target) model.Detection {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if n <= prev || f.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.verdicts[target.Domain]
}

// --- Enricher fake ---

type fakeEnricher struct {
	mu       sync.Mutex
	contacts map[string]model.ContactRecord
	called   []string
}

func (f *fakeEnricher) Enrich(_ context.Context, target domain.Target) model.ContactRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, target.Domain)
	return f.contacts[target.Domain]
}

func (f *fakeEnricher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.called...)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
	store.Store
}

func (m *mockStore) Exists(ctx context.Context, domain string) (bool, error) {
	args := m.Called(ctx, domain)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpsertBatch(ctx context.Context, recs []model.StoreRecord) (int, error) {
	args := m.Called(ctx, recs)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CreateSweep(ctx context.Context, kind model.SweepKind) (*model.Sweep, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sweep), args.Error(1)
}

func (m *mockStore) CompleteSweep(ctx context.Context, sw *model.Sweep) error {
	args := m.Called(ctx, sw)
	return args.Error(0)
}

// --- Checker mock ---

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context, rec model.StoreRecord) (model.Serviceability, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(model.Serviceability), args.Error(1)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func platform(method string, signals ...string) model.Detection {
	return model.Detection{IsPlatform: true, IsPremium: len(signals) > 0, Method: method, Signals: signals}
}

func seeds(candidates ...string) []model.Seed {
	out := make([]model.Seed, len(candidates))
	for i, c := range candidates {
		out[i] = model.Seed{Candidate: c}
	}
	return out
}
