package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storefront-cli/internal/model"
)

// storeColumns is the column order shared by inserts, COPY, and selects.
var storeColumns = []string{
	"domain", "company_name", "vertical",
	"is_platform", "is_premium", "detection_signals",
	"email", "phone",
	"street_address", "city", "state", "zip_code", "country",
	"has_local_delivery",
	"revenue_estimate", "employees_estimate",
	"is_uber_serviceable", "uber_check_date",
	"raw_data",
	"discovered_at", "scraped_at", "last_updated",
}

const sweepColumns = `id, kind, status, started_at, finished_at, candidates, skipped, processed, matched, persisted, errored, failed_batches`

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row, and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// recordArgs flattens rec into storeColumns order. Empty strings and empty
// collections become NULL.
func recordArgs(rec model.StoreRecord) ([]any, error) {
	signals, err := jsonOrNil(rec.DetectionSignals, len(rec.DetectionSignals))
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal detection signals")
	}
	raw, err := jsonOrNil(rec.RawData, len(rec.RawData))
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal raw data")
	}

	var employees any
	if rec.EmployeesEstimate != nil {
		employees = int64(*rec.EmployeesEstimate)
	}

	return []any{
		rec.Domain, nullString(rec.CompanyName), nullString(rec.Vertical),
		rec.IsPlatform, rec.IsPremium, signals,
		nullString(rec.Email), nullString(rec.Phone),
		nullString(rec.Street), nullString(rec.City), nullString(rec.State), nullString(rec.ZipCode), nullString(rec.Country),
		rec.HasLocalDelivery,
		floatOrNil(rec.RevenueEstimate), employees,
		boolOrNil(rec.IsUberServiceable), timeOrNil(rec.UberCheckDate),
		raw,
		rec.DiscoveredAt.UTC(), timeOrNil(rec.ScrapedAt), rec.LastUpdated.UTC(),
	}, nil
}

// scanRecord reads one row selected with storeColumns. JSON columns must be
// selected as text.
func scanRecord(row scannable) (*model.StoreRecord, error) {
	var (
		rec                               model.StoreRecord
		company, vertical, email, phone   sql.NullString
		street, city, state, zip, country sql.NullString
		signals, raw                      sql.NullString
		revenue                           sql.NullFloat64
		employees                         sql.NullInt64
		serviceable                       sql.NullBool
		checked, scraped                  sql.NullTime
	)

	err := row.Scan(
		&rec.Domain, &company, &vertical,
		&rec.IsPlatform, &rec.IsPremium, &signals,
		&email, &phone,
		&street, &city, &state, &zip, &country,
		&rec.HasLocalDelivery,
		&revenue, &employees,
		&serviceable, &checked,
		&raw,
		&rec.DiscoveredAt, &scraped, &rec.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	rec.CompanyName = company.String
	rec.Vertical = vertical.String
	rec.Email = email.String
	rec.Phone = phone.String
	rec.Address = model.Address{
		Street:  street.String,
		City:    city.String,
		State:   state.String,
		ZipCode: zip.String,
		Country: country.String,
	}
	if signals.Valid && signals.String != "" {
		if err := json.Unmarshal([]byte(signals.String), &rec.DetectionSignals); err != nil {
			return nil, eris.Wrapf(err, "store: decode detection signals for %s", rec.Domain)
		}
	}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &rec.RawData); err != nil {
			return nil, eris.Wrapf(err, "store: decode raw data for %s", rec.Domain)
		}
	}
	if revenue.Valid {
		v := revenue.Float64
		rec.RevenueEstimate = &v
	}
	if employees.Valid {
		v := int(employees.Int64)
		rec.EmployeesEstimate = &v
	}
	if serviceable.Valid {
		v := serviceable.Bool
		rec.IsUberServiceable = &v
	}
	if checked.Valid {
		v := checked.Time.UTC()
		rec.UberCheckDate = &v
	}
	if scraped.Valid {
		v := scraped.Time.UTC()
		rec.ScrapedAt = &v
	}
	rec.DiscoveredAt = rec.DiscoveredAt.UTC()
	rec.LastUpdated = rec.LastUpdated.UTC()
	return &rec, nil
}

func scanSweep(row scannable) (*model.Sweep, error) {
	var (
		sw       model.Sweep
		kind     string
		status   string
		finished sql.NullTime
	)
	err := row.Scan(&sw.ID, &kind, &status, &sw.StartedAt, &finished,
		&sw.Candidates, &sw.Skipped, &sw.Processed, &sw.Matched,
		&sw.Persisted, &sw.Errored, &sw.FailedBatches)
	if err != nil {
		return nil, err
	}
	sw.Kind = model.SweepKind(kind)
	sw.Status = model.SweepStatus(status)
	sw.StartedAt = sw.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		sw.FinishedAt = &t
	}
	return &sw, nil
}

// mergeInto folds recs into the existing rows keyed by domain, in order.
// Records repeating a domain within the batch merge with each other.
func mergeInto(existing map[string]model.StoreRecord, recs []model.StoreRecord, now time.Time) []model.StoreRecord {
	merged := make(map[string]model.StoreRecord, len(recs))
	order := make([]string, 0, len(recs))
	for _, rec := range recs {
		prev, seen := merged[rec.Domain]
		if !seen {
			prev, seen = existing[rec.Domain]
			order = append(order, rec.Domain)
		}
		if seen {
			merged[rec.Domain] = model.Merge(prev, rec, now)
			continue
		}
		rec.LastUpdated = now
		if rec.DiscoveredAt.IsZero() {
			rec.DiscoveredAt = now
		}
		merged[rec.Domain] = rec
	}

	out := make([]model.StoreRecord, 0, len(order))
	for _, d := range order {
		out = append(out, merged[d])
	}
	return out
}

func uniqueDomains(recs []model.StoreRecord) []string {
	seen := make(map[string]bool, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if !seen[r.Domain] {
			seen[r.Domain] = true
			out = append(out, r.Domain)
		}
	}
	return out
}

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// buildWhere renders the filter as a WHERE clause (empty when unconstrained)
// and its arguments.
func buildWhere(f Filter, ph placeholder) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(expr, ph(len(args))))
	}

	if f.Platform != nil {
		add("is_platform = %s", *f.Platform)
	}
	if f.Premium != nil {
		add("is_premium = %s", *f.Premium)
	}
	if f.Country != "" {
		add("UPPER(country) = %s", strings.ToUpper(f.Country))
	}
	if f.State != "" {
		add("UPPER(state) = %s", strings.ToUpper(f.State))
	}
	if f.HasStreet != nil {
		if *f.HasStreet {
			conds = append(conds, "street_address IS NOT NULL")
		} else {
			conds = append(conds, "street_address IS NULL")
		}
	}
	if f.Serviceable != nil {
		add("is_uber_serviceable = %s", *f.Serviceable)
	}
	if f.Unchecked {
		conds = append(conds, "is_uber_serviceable IS NULL")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildPage renders ORDER BY plus LIMIT/OFFSET.
func buildPage(f Filter, ph placeholder, args []any) (string, []any) {
	clause := " ORDER BY domain"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		clause += " LIMIT " + ph(len(args))
		if f.Offset > 0 {
			args = append(args, f.Offset)
			clause += " OFFSET " + ph(len(args))
		}
	}
	return clause, args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolOrNil(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeOrNil(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func jsonOrNil(v any, n int) (any, error) {
	if n == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
