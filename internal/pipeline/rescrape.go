package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/metrics"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

// Rescrape re-enriches persisted platform stores that still lack a street
// address. The filter narrows the selection further (country, premium);
// its platform and street constraints are always overridden. Detection is
// not repeated.
func (o *Orchestrator) Rescrape(ctx context.Context, f store.Filter) (*Summary, error) {
	f.Platform = store.BoolPtr(true)
	f.HasStreet = store.BoolPtr(false)
	if o.opts.Limit > 0 {
		f.Limit = o.opts.Limit
	}

	recs, err := o.store.Query(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select rescrape targets")
	}

	sw := o.startSweep(ctx, model.SweepKindRescrape)
	sw.Candidates = len(recs)
	log := zap.L().With(zap.String("sweep_id", sw.ID))

	jobs := make([]job, 0, len(recs))
	for _, rec := range recs {
		target, err := domain.Parse(rec.Domain)
		if err != nil {
			log.Warn("pipeline: stored domain no longer parses", zap.String("domain", rec.Domain), zap.Error(err))
			sw.Skipped++
			continue
		}
		jobs = append(jobs, job{target: target})
	}

	log.Info("pipeline: starting rescrape sweep",
		zap.Int("candidates", sw.Candidates),
		zap.Int("concurrency", o.opts.Concurrency),
	)

	err = o.sweep(ctx, sw, jobs, o.reenrich)
	return o.finishSweep(ctx, sw, err)
}

// reenrich produces a partial record the repository merges over the stored
// row. Only previously empty fields can change. A candidate matches when a
// street was found.
func (o *Orchestrator) reenrich(ctx context.Context, j job) result {
	contact := o.enricher.Enrich(ctx, j.target)

	now := o.now()
	rec := model.StoreRecord{
		Domain:      j.target.Domain,
		ScrapedAt:   &now,
		LastUpdated: now,
	}
	rec.ApplyContact(contact)

	return result{rec: &rec, outcome: metrics.OutcomePlatform, matched: rec.HasStreet()}
}
