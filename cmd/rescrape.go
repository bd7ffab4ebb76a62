package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/storefront-cli/internal/store"
)

var (
	rescrapeCountry    string
	rescrapeLimit      int
	rescrapeConcurrent int
)

var rescrapeCmd = &cobra.Command{
	Use:   "rescrape",
	Short: "Re-enrich platform stores that have no street address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSweep(ctx, "rescrape", sweepOptions(rescrapeConcurrent, 0, rescrapeLimit))
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Orchestrator.Rescrape(ctx, store.Filter{Country: rescrapeCountry})
		if sum != nil {
			logSummary("rescrape complete", sum)
		}
		return err
	},
}

func init() {
	rescrapeCmd.Flags().StringVar(&rescrapeCountry, "country", "", "only stores in this country (ISO code)")
	rescrapeCmd.Flags().IntVar(&rescrapeLimit, "limit", 0, "max stores to re-enrich (default from config)")
	rescrapeCmd.Flags().IntVar(&rescrapeConcurrent, "concurrent", 0, "max in-flight stores (default from config)")
	rootCmd.AddCommand(rescrapeCmd)
}
