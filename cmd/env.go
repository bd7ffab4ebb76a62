package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/catalog"
	"github.com/sells-group/storefront-cli/internal/detect"
	"github.com/sells-group/storefront-cli/internal/enrich"
	"github.com/sells-group/storefront-cli/internal/pipeline"
	"github.com/sells-group/storefront-cli/internal/scrape"
	"github.com/sells-group/storefront-cli/internal/store"
)

// sweepEnv holds the repository and orchestrator used by the discover and
// rescrape commands.
type sweepEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases the repository.
func (e *sweepEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSweep validates config for mode, opens and migrates the store, and
// builds the orchestrator. Callers should defer env.Close().
func initSweep(ctx context.Context, mode string, opts pipeline.Options) (*sweepEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := scrape.NewClient(scrape.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		MaxAttempts:  cfg.Fetch.MaxAttempts,
		Limiter:      scrape.NewHostLimiter(cfg.Fetch.RatePerHost, cfg.Fetch.Burst),
	})

	orch := pipeline.New(detect.New(fetcher, cat), enrich.New(fetcher, cat), st, opts)
	return &sweepEnv{Store: st, Orchestrator: orch}, nil
}

// loadCatalog returns the configured Signal Catalog, or the built-in one.
func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Detect.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Detect.CatalogPath)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded signal catalog",
		zap.String("path", cfg.Detect.CatalogPath),
		zap.String("version", cat.Version),
	)
	return cat, nil
}

// openStore opens the configured repository and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
