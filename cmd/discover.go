package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/pipeline"
	"github.com/sells-group/storefront-cli/internal/seed"
)

var (
	discoverInput      string
	discoverCSV        string
	discoverLimit      int
	discoverConcurrent int
	discoverCommitSize int
)

var discoverCmd = &cobra.Command{
	Use:   "discover [domain...]",
	Short: "Detect, classify, and enrich candidate storefronts",
	Long:  "Reads candidates from --input (plain list, CSV, or XLSX), --csv (seed export), or arguments, then detects platform stores, enriches them, and persists the results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var seeds []model.Seed
		for _, path := range []string{discoverInput, discoverCSV} {
			if path == "" {
				continue
			}
			s, err := seed.Load(ctx, path)
			if err != nil {
				return eris.Wrap(err, "load candidates")
			}
			seeds = append(seeds, s...)
		}
		for _, a := range args {
			seeds = append(seeds, model.Seed{Candidate: a})
		}
		if len(seeds) == 0 {
			return eris.New("no candidates: pass --input, --csv, or domains as arguments")
		}

		env, err := initSweep(ctx, "discover", sweepOptions(discoverConcurrent, discoverCommitSize, discoverLimit))
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting discovery", zap.Int("candidates", len(seeds)))

		sum, err := env.Orchestrator.Run(ctx, seeds)
		if sum != nil {
			logSummary("discovery complete", sum)
		}
		return err
	},
}

// sweepOptions resolves flag overrides against config. Zero flags fall back
// to the batch section.
func sweepOptions(concurrent, commitSize, limit int) pipeline.Options {
	opts := pipeline.Options{
		Concurrency: cfg.Batch.Concurrency,
		CommitSize:  cfg.Batch.CommitSize,
		Limit:       cfg.Batch.Limit,
	}
	if concurrent > 0 {
		opts.Concurrency = concurrent
	}
	if commitSize > 0 {
		opts.CommitSize = commitSize
	}
	if limit > 0 {
		opts.Limit = limit
	}
	return opts
}

func logSummary(msg string, sum *pipeline.Summary) {
	zap.L().Info(msg,
		zap.String("sweep_id", sum.SweepID),
		zap.Int("candidates", sum.Candidates),
		zap.Int("skipped", sum.Skipped),
		zap.Int("processed", sum.Processed),
		zap.Int("matched", sum.Matched),
		zap.Int("persisted", sum.Persisted),
		zap.Int("errored", sum.Errored),
		zap.Int("failed_batches", sum.FailedBatches),
		zap.Duration("duration", sum.Duration),
	)
}

func init() {
	discoverCmd.Flags().StringVar(&discoverInput, "input", "", "candidate file: plain list, .csv, or .xlsx")
	discoverCmd.Flags().StringVar(&discoverCSV, "csv", "", "seed export CSV")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max candidates to process (default from config)")
	discoverCmd.Flags().IntVar(&discoverConcurrent, "concurrent", 0, "max in-flight candidates (default from config)")
	discoverCmd.Flags().IntVar(&discoverCommitSize, "commit-size", 0, "records per commit batch (default from config)")
	rootCmd.AddCommand(discoverCmd)
}
