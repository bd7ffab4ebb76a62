package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/export"
)

var (
	exportOutput          string
	exportFormat          string
	exportPremiumOnly     bool
	exportServiceableOnly bool
	exportCountry         string
	exportWithAddress     bool
	exportLimit           int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export platform stores as CSV, XLSX, or JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		output := exportOutput
		if output == "" {
			output = cfg.Export.Output
		}
		name := exportFormat
		if name == "" {
			name = cfg.Export.Format
		}
		format, err := export.ParseFormat(name, output)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := export.ToFile(ctx, st, export.Options{
			PremiumOnly:     exportPremiumOnly,
			ServiceableOnly: exportServiceableOnly,
			Country:         exportCountry,
			WithAddress:     exportWithAddress,
			Limit:           exportLimit,
		}, format, output)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("output", output),
			zap.String("format", string(format)),
			zap.Int("records", n),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file (default from config)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv, xlsx, or json (default from output extension)")
	exportCmd.Flags().BoolVar(&exportPremiumOnly, "premium-only", false, "only premium-tier stores")
	exportCmd.Flags().BoolVar(&exportServiceableOnly, "serviceable-only", false, "only stores with delivery coverage")
	exportCmd.Flags().StringVar(&exportCountry, "country", "", "only stores in this country (ISO code)")
	exportCmd.Flags().BoolVar(&exportWithAddress, "with-address", false, "only stores with a street address")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max records (0 for all)")
	rootCmd.AddCommand(exportCmd)
}
