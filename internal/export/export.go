// Package export writes persisted storefront records as CSV, XLSX, or JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/store"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name. An empty name falls back to the
// output path's extension, then to CSV.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch Format(strings.ToLower(name)) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", eris.Errorf("export: unknown format %q", name)
	}
}

// Options selects which platform stores are exported.
type Options struct {
	PremiumOnly     bool
	ServiceableOnly bool
	Country         string
	WithAddress     bool
	Limit           int
}

// Filter converts the options to a repository filter. Only platform stores
// are exported.
func (o Options) Filter() store.Filter {
	f := store.Filter{
		Platform: store.BoolPtr(true),
		Country:  o.Country,
		Limit:    o.Limit,
	}
	if o.PremiumOnly {
		f.Premium = store.BoolPtr(true)
	}
	if o.ServiceableOnly {
		f.Serviceable = store.BoolPtr(true)
	}
	if o.WithAddress {
		f.HasStreet = store.BoolPtr(true)
	}
	return f
}

// columns is the ordered tabular layout shared by CSV and XLSX.
var columns = []string{
	"domain",
	"company_name",
	"vertical",
	"is_premium",
	"detection_signals",
	"email",
	"phone",
	"street_address",
	"city",
	"state",
	"zip_code",
	"country",
	"has_local_delivery",
	"revenue_estimate",
	"employees_estimate",
	"is_uber_serviceable",
	"uber_check_date",
	"discovered_at",
	"scraped_at",
}

// Row flattens a record into the tabular layout.
func Row(r model.StoreRecord) []string {
	return []string{
		r.Domain,
		r.CompanyName,
		r.Vertical,
		strconv.FormatBool(r.IsPremium),
		strings.Join(r.DetectionSignals, ";"),
		r.Email,
		r.Phone,
		r.Street,
		r.City,
		r.State,
		r.ZipCode,
		r.Country,
		strconv.FormatBool(r.HasLocalDelivery),
		formatFloat(r.RevenueEstimate),
		formatInt(r.EmployeesEstimate),
		formatBool(r.IsUberServiceable),
		formatTime(r.UberCheckDate),
		r.DiscoveredAt.UTC().Format(time.RFC3339),
		formatTime(r.ScrapedAt),
	}
}

// Write queries st with opts and encodes the records to w. It returns the
// number of records written.
func Write(ctx context.Context, st store.Store, opts Options, format Format, w io.Writer) (int, error) {
	recs, err := st.Query(ctx, opts.Filter())
	if err != nil {
		return 0, eris.Wrap(err, "export: query stores")
	}

	switch format {
	case FormatJSON:
		err = WriteJSON(w, recs)
	case FormatXLSX:
		err = WriteXLSX(w, recs)
	default:
		err = WriteCSV(w, recs)
	}
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// ToFile exports to path, creating or truncating it.
func ToFile(ctx context.Context, st store.Store, opts Options, format Format, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "export: create file")
	}
	n, err := Write(ctx, st, opts, format, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = eris.Wrap(closeErr, "export: close file")
	}
	return n, err
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, recs []model.StoreRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range recs {
		if err := cw.Write(Row(r)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single "stores" sheet.
func WriteXLSX(w io.Writer, recs []model.StoreRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("stores")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range columns {
		header.AddCell().SetString(c)
	}
	for _, r := range recs {
		row := sheet.AddRow()
		for _, v := range Row(r) {
			row.AddCell().SetString(v)
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(w io.Writer, recs []model.StoreRecord) error {
	if recs == nil {
		recs = []model.StoreRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(recs), "export: encode json")
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
