package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/pipeline"
	"github.com/sells-group/storefront-cli/internal/store"
	"github.com/sells-group/storefront-cli/pkg/uberdirect"
)

var (
	checkUberLimit       int
	checkUberPremiumOnly bool
)

var checkUberCmd = &cobra.Command{
	Use:   "check-uber",
	Short: "Check delivery coverage for stores with a street address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("check-uber"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client := uberdirect.NewClient(cfg.Uber.ClientID, cfg.Uber.ClientSecret, cfg.Uber.CustomerID,
			uberdirect.WithBaseURL(cfg.Uber.BaseURL),
			uberdirect.WithAuthURL(cfg.Uber.AuthURL),
		)

		f := store.Filter{Limit: checkUberLimit}
		if checkUberPremiumOnly {
			f.Premium = store.BoolPtr(true)
		}

		sum, err := pipeline.CheckServiceability(ctx, st, client, f, cfg.Uber.Concurrency)
		if sum != nil {
			zap.L().Info("serviceability check complete",
				zap.Int("checked", sum.Checked),
				zap.Int("serviceable", sum.Serviceable),
				zap.Int("not_serviceable", sum.NotServiceable),
				zap.Int("unknown", sum.Unknown),
				zap.Int("write_errors", sum.WriteErrors),
			)
		}
		return err
	},
}

func init() {
	checkUberCmd.Flags().IntVar(&checkUberLimit, "limit", 100, "max stores to check")
	checkUberCmd.Flags().BoolVar(&checkUberPremiumOnly, "premium-only", false, "only check premium-tier stores")
	rootCmd.AddCommand(checkUberCmd)
}
