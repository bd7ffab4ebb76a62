// Package pipeline drives bounded-concurrency sweeps of the detector and
// enricher over candidate lists and commits the results in batches.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/metrics"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

// PlatformDetector classifies a candidate's homepage.
type PlatformDetector interface {
	Detect(ctx context.Context, target domain.Target) model.Detection
}

// ContactEnricher gathers contact data for a confirmed storefront.
type ContactEnricher interface {
	Enrich(ctx context.Context, target domain.Target) model.ContactRecord
}

// Options tunes a sweep.
type Options struct {
	// Concurrency caps in-flight candidate pipelines. Defaults to 20.
	Concurrency int
	// CommitSize is the number of records per repository transaction.
	// Defaults to 100.
	CommitSize int
	// Limit caps the candidates dispatched after dedup. Zero means no cap.
	Limit int
	// OnProgress, when set, receives the running counts after every commit.
	OnProgress func(model.SweepCounts)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 20
	}
	if o.CommitSize <= 0 {
		o.CommitSize = 100
	}
	return o
}

// Orchestrator is the Batch Orchestrator.
type Orchestrator struct {
	detector PlatformDetector
	enricher ContactEnricher
	store    store.Store
	opts     Options
	now      func() time.Time
}

// New creates an Orchestrator.
func New(det PlatformDetector, enr ContactEnricher, st store.Store, opts Options) *Orchestrator {
	return &Orchestrator{
		detector: det,
		enricher: enr,
		store:    st,
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Summary reports the outcome of one sweep.
type Summary struct {
	SweepID string `json:"sweep_id"`
	model.SweepCounts
	Duration time.Duration `json:"duration"`
}

type job struct {
	target domain.Target
	seed   model.Seed
}

// result is one finished candidate. A nil rec means nothing to persist.
type result struct {
	rec     *model.StoreRecord
	outcome string
	matched bool
}

// Run sweeps seeds through detection and enrichment. Candidates are
// normalized and deduplicated in memory and against the repository before
// any work is dispatched. Persistence failures are counted per batch and do
// not stop the sweep. The returned error is non-nil only when ctx ends early.
func (o *Orchestrator) Run(ctx context.Context, seeds []model.Seed) (*Summary, error) {
	sw := o.startSweep(ctx, model.SweepKindDiscover)
	sw.Candidates = len(seeds)
	log := zap.L().With(zap.String("sweep_id", sw.ID))

	jobs := make([]job, 0, len(seeds))
	seen := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		if o.opts.Limit > 0 && len(jobs) >= o.opts.Limit {
			break
		}
		target, err := domain.Parse(seed.Candidate)
		if err != nil {
			log.Debug("pipeline: invalid candidate", zap.String("candidate", seed.Candidate), zap.Error(err))
			metrics.ObserveCandidate(metrics.OutcomeInvalid)
			sw.Skipped++
			continue
		}
		if seen[target.Domain] {
			sw.Skipped++
			continue
		}
		seen[target.Domain] = true

		exists, err := o.store.Exists(ctx, target.Domain)
		if err != nil {
			log.Warn("pipeline: dedup lookup failed, processing anyway",
				zap.String("domain", target.Domain), zap.Error(err))
		}
		if exists {
			metrics.ObserveCandidate(metrics.OutcomeSkipped)
			sw.Skipped++
			continue
		}

		jobs = append(jobs, job{target: target, seed: seed})
	}

	log.Info("pipeline: starting discovery sweep",
		zap.Int("candidates", sw.Candidates),
		zap.Int("dispatched", len(jobs)),
		zap.Int("skipped", sw.Skipped),
		zap.Int("concurrency", o.opts.Concurrency),
	)

	err := o.sweep(ctx, sw, jobs, o.discover)
	return o.finishSweep(ctx, sw, err)
}

// discover runs the per-candidate pipeline: detect, then enrich only when
// the candidate is a platform store.
func (o *Orchestrator) discover(ctx context.Context, j job) result {
	det := o.detector.Detect(ctx, j.target)
	if det.Failed() {
		return result{outcome: metrics.OutcomeError}
	}

	if !det.IsPlatform {
		rec := model.NewRecord(j.target.Domain, det, nil, j.seed, o.now())
		return result{rec: &rec, outcome: metrics.OutcomeNotPlatform}
	}

	contact := o.enricher.Enrich(ctx, j.target)
	rec := model.NewRecord(j.target.Domain, det, &contact, j.seed, o.now())

	outcome := metrics.OutcomePlatform
	if rec.IsPremium {
		outcome = metrics.OutcomePremium
	}
	return result{rec: &rec, outcome: outcome, matched: true}
}

// sweep fans jobs out under the admission gate and funnels results into a
// single committer goroutine.
func (o *Orchestrator) sweep(ctx context.Context, sw *model.Sweep, jobs []job, work func(context.Context, job) result) error {
	var mu sync.Mutex
	results := make(chan model.StoreRecord, o.opts.CommitSize)

	committed := make(chan struct{})
	go func() {
		defer close(committed)
		o.commitLoop(ctx, sw, &mu, results)
	}()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for _, j := range jobs {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			res := work(gCtx, j)
			metrics.ObserveCandidate(res.outcome)

			mu.Lock()
			sw.Processed++
			if res.matched {
				sw.Matched++
			}
			if res.outcome == metrics.OutcomeError {
				sw.Errored++
			}
			mu.Unlock()

			if res.rec != nil {
				results <- *res.rec
			}
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-committed
	return ctx.Err()
}

// commitLoop drains results and writes them in CommitSize groups. Commits
// run on a context detached from cancellation so finished work is kept.
func (o *Orchestrator) commitLoop(ctx context.Context, sw *model.Sweep, mu *sync.Mutex, results <-chan model.StoreRecord) {
	commitCtx := context.WithoutCancel(ctx)
	batch := make([]model.StoreRecord, 0, o.opts.CommitSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := o.store.UpsertBatch(commitCtx, batch)

		mu.Lock()
		if err != nil {
			sw.FailedBatches++
		} else {
			sw.Persisted += n
		}
		counts := sw.SweepCounts
		mu.Unlock()

		if err != nil {
			metrics.ObserveBatchFailure()
			zap.L().Error("pipeline: batch commit failed",
				zap.String("sweep_id", sw.ID),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		} else {
			metrics.ObservePersisted(n)
			zap.L().Info("pipeline: progress",
				zap.String("sweep_id", sw.ID),
				zap.Int("processed", counts.Processed),
				zap.Int("matched", counts.Matched),
				zap.Int("persisted", counts.Persisted),
			)
		}
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(counts)
		}
		batch = batch[:0]
	}

	for res := range results {
		batch = append(batch, res)
		if len(batch) >= o.opts.CommitSize {
			flush()
		}
	}
	flush()
}

func (o *Orchestrator) startSweep(ctx context.Context, kind model.SweepKind) *model.Sweep {
	sw, err := o.store.CreateSweep(context.WithoutCancel(ctx), kind)
	if err != nil {
		zap.L().Warn("pipeline: failed to record sweep start", zap.Error(err))
		return &model.Sweep{
			ID:        uuid.New().String(),
			Kind:      kind,
			Status:    model.SweepStatusRunning,
			StartedAt: o.now(),
		}
	}
	return sw
}

func (o *Orchestrator) finishSweep(ctx context.Context, sw *model.Sweep, runErr error) (*Summary, error) {
	sw.Status = model.SweepStatusComplete
	if runErr != nil {
		sw.Status = model.SweepStatusFailed
	}
	finished := o.now()
	sw.FinishedAt = &finished

	if err := o.store.CompleteSweep(context.WithoutCancel(ctx), sw); err != nil {
		zap.L().Warn("pipeline: failed to record sweep completion",
			zap.String("sweep_id", sw.ID), zap.Error(err))
	}

	summary := &Summary{
		SweepID:     sw.ID,
		SweepCounts: sw.SweepCounts,
		Duration:    finished.Sub(sw.StartedAt),
	}
	zap.L().Info("pipeline: sweep finished",
		zap.String("sweep_id", sw.ID),
		zap.String("kind", string(sw.Kind)),
		zap.String("status", string(sw.Status)),
		zap.Int("processed", sw.Processed),
		zap.Int("matched", sw.Matched),
		zap.Int("persisted", sw.Persisted),
		zap.Int("errored", sw.Errored),
		zap.Int("failed_batches", sw.FailedBatches),
		zap.Duration("duration", summary.Duration),
	)

	if runErr != nil {
		return summary, eris.Wrap(runErr, "pipeline: sweep interrupted")
	}
	return summary, nil
}
