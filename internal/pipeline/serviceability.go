package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

// ServiceabilityChecker answers whether a courier covers an address.
type ServiceabilityChecker interface {
	Check(ctx context.Context, rec model.StoreRecord) (model.Serviceability, error)
}

// ServiceabilitySummary counts the results of a coverage pass.
type ServiceabilitySummary struct {
	Checked        int `json:"checked"`
	Serviceable    int `json:"serviceable"`
	NotServiceable int `json:"not_serviceable"`
	Unknown        int `json:"unknown"`
	WriteErrors    int `json:"write_errors"`
}

// CheckServiceability checks platform stores that have a street address and
// no recorded coverage, and writes each result back. Checker errors are
// recorded as unknown, which leaves the store eligible for the next pass.
func CheckServiceability(ctx context.Context, st store.Store, checker ServiceabilityChecker, f store.Filter, concurrency int) (*ServiceabilitySummary, error) {
	f.Platform = store.BoolPtr(true)
	f.HasStreet = store.BoolPtr(true)
	f.Unchecked = true
	if concurrency <= 0 {
		concurrency = 5
	}

	recs, err := st.Query(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select serviceability targets")
	}
	zap.L().Info("pipeline: checking serviceability", zap.Int("stores", len(recs)))

	var (
		mu  sync.Mutex
		sum ServiceabilitySummary
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, rec := range recs {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, err := checker.Check(gCtx, rec)
			if err != nil {
				zap.L().Debug("pipeline: serviceability check failed",
					zap.String("domain", rec.Domain), zap.Error(err))
				result = model.Unknown
			}

			writeErr := st.SetServiceability(gCtx, rec.Domain, result, time.Now().UTC())
			if writeErr != nil {
				zap.L().Error("pipeline: failed to store serviceability",
					zap.String("domain", rec.Domain), zap.Error(writeErr))
			}

			mu.Lock()
			defer mu.Unlock()
			sum.Checked++
			if writeErr != nil {
				sum.WriteErrors++
			}
			switch result {
			case model.Serviceable:
				sum.Serviceable++
			case model.NotServiceable:
				sum.NotServiceable++
			default:
				sum.Unknown++
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: serviceability pass finished",
		zap.Int("checked", sum.Checked),
		zap.Int("serviceable", sum.Serviceable),
		zap.Int("not_serviceable", sum.NotServiceable),
		zap.Int("unknown", sum.Unknown),
	)
	if err := ctx.Err(); err != nil {
		return &sum, eris.Wrap(err, "pipeline: serviceability pass interrupted")
	}
	return &sum, nil
}
