// Package seed reads candidate lists handed over by discovery collaborators:
// plain domain lists and seed exports in CSV or XLSX form.
package seed

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/storefront-cli/internal/enrich"
	"github.com/sells-group/storefront-cli/internal/model"
)

// Seed export column headers.
const (
	ColLocation  = "Location on Site"
	ColCompany   = "Company"
	ColCity      = "City"
	ColState     = "State"
	ColZip       = "Zip"
	ColCountry   = "Country"
	ColEmails    = "Emails"
	ColPhones    = "Telephones"
	ColVertical  = "Vertical"
	ColRevenue   = "Sales Revenue USD"
	ColEmployees = "Employees"
)

// candidateColumns are accepted, in order, as the candidate column of a
// header-only CSV without a Location on Site column.
var candidateColumns = []string{ColLocation, "domain", "url", "website"}

// Load reads seeds from path, choosing the format by extension: .csv and
// .xlsx are seed exports, anything else is a plain list.
func Load(ctx context.Context, path string) ([]model.Seed, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return fromRows(rows)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadList(f)
	}
}

// ReadList reads one candidate per line. Blank lines and lines starting
// with # are skipped.
func ReadList(r io.Reader) ([]model.Seed, error) {
	var out []model.Seed
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, model.Seed{Candidate: line})
	}
	return out, eris.Wrap(sc.Err(), "seed: read list")
}

// ReadCSV reads a seed export. The first row must be a header naming a
// candidate column.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.Seed, error) {
	rowCh, errCh := streamCSV(ctx, r)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]model.Seed, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	candCol := -1
	for _, c := range candidateColumns {
		if i, ok := idx[strings.ToLower(c)]; ok {
			candCol = i
			break
		}
	}
	if candCol < 0 {
		return nil, eris.Errorf("seed: header has no candidate column (want one of %s)", strings.Join(candidateColumns, ", "))
	}

	get := func(row []string, col string) string {
		i, ok := idx[strings.ToLower(col)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []model.Seed
	for _, row := range rows[1:] {
		if candCol >= len(row) || row[candCol] == "" {
			continue
		}
		meta := model.Seed{
			CompanyName:       get(row, ColCompany),
			Vertical:          get(row, ColVertical),
			Email:             firstEmail(get(row, ColEmails)),
			Phone:             firstPhone(get(row, ColPhones)),
			RevenueEstimate:   parseRevenue(get(row, ColRevenue)),
			EmployeesEstimate: parseEmployees(get(row, ColEmployees)),
			Address: model.Address{
				City:    titleCity(get(row, ColCity)),
				State:   enrich.NormalizeState(get(row, ColState)),
				ZipCode: get(row, ColZip),
				Country: enrich.NormalizeCountry(get(row, ColCountry)),
			},
		}
		for _, cand := range splitCandidates(row[candCol]) {
			s := meta
			s.Candidate = cand
			out = append(out, s)
		}
	}
	return out, nil
}

// splitCandidates splits a semicolon-separated location cell, dropping
// wildcard entries.
func splitCandidates(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ";") {
		part = strings.TrimSpace(part)
		if part == "" || strings.Contains(part, "*") {
			continue
		}
		out = append(out, part)
	}
	return out
}

func firstEmail(cell string) string {
	for _, e := range strings.Split(cell, ";") {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "@") && !strings.HasPrefix(strings.ToLower(e), "n/a@") {
			return e
		}
	}
	return ""
}

func firstPhone(cell string) string {
	for _, p := range strings.Split(cell, ";") {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "ph:"))
		if len(p) > 5 {
			return p
		}
	}
	return ""
}

var revenueStrip = regexp.MustCompile(`[$,\s]`)

func parseRevenue(cell string) *float64 {
	cell = revenueStrip.ReplaceAllString(cell, "")
	if cell == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseEmployees(cell string) *int {
	cell = strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cell == "" {
		return nil
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		return nil
	}
	return &v
}

// titleCity fixes the casing of city names exported in all caps or all
// lowercase. Mixed-case names are kept as given.
func titleCity(s string) string {
	if s == "" || (s != strings.ToUpper(s) && s != strings.ToLower(s)) {
		return s
	}
	return cases.Title(language.AmericanEnglish).String(s)
}
