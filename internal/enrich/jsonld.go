package enrich

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/model"
)

var businessTypes = map[string]bool{
	"Organization":  true,
	"LocalBusiness": true,
	"Store":         true,
}

// extractJSONLD reads business-listing structured data from every JSON-LD
// script in the document. Malformed blocks are skipped.
func extractJSONLD(doc *goquery.Selection, defaultCountry string) model.ContactRecord {
	var out model.ContactRecord
	doc.Find(`script[type*="ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			zap.L().Debug("enrich: skipping malformed json-ld", zap.Error(err))
			return
		}
		for _, node := range businessNodes(v) {
			out.Absorb(schemaContact(node, defaultCountry))
		}
	})
	return out
}

// businessNodes collects Organization/LocalBusiness/Store objects from a
// decoded JSON-LD value, descending into lists and @graph.
func businessNodes(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, businessNodes(item)...)
		}
	case map[string]any:
		if isBusinessType(t["@type"]) {
			out = append(out, t)
		}
		if g, ok := t["@graph"]; ok {
			out = append(out, businessNodes(g)...)
		}
	}
	return out
}

func isBusinessType(v any) bool {
	switch t := v.(type) {
	case string:
		return businessTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && businessTypes[s] {
				return true
			}
		}
	}
	return false
}

func schemaContact(node map[string]any, defaultCountry string) model.ContactRecord {
	rec := model.ContactRecord{
		Phone: scalar(node["telephone"]),
		Email: strings.TrimPrefix(scalar(node["email"]), "mailto:"),
	}

	switch a := node["address"].(type) {
	case map[string]any:
		rec.Address = postalAddress(a, defaultCountry)
	case []any:
		for _, item := range a {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if addr := postalAddress(m, defaultCountry); !addr.IsEmpty() {
				rec.Address = addr
				break
			}
		}
	case string:
		rec.Address, _ = parseAddress(a, defaultCountry)
	}

	if !rec.Address.IsEmpty() {
		rec.AddressSource = "json_ld"
	}
	return rec
}

// postalAddress maps a PostalAddress object. An object carrying neither a
// street nor a city and region yields an empty Address.
func postalAddress(m map[string]any, defaultCountry string) model.Address {
	addr := model.Address{
		Street:  scalar(m["streetAddress"]),
		City:    scalar(m["addressLocality"]),
		State:   NormalizeState(scalar(m["addressRegion"])),
		ZipCode: scalar(m["postalCode"]),
		Country: countryValue(m["addressCountry"]),
	}
	if addr.Street == "" && (addr.City == "" || addr.State == "") {
		return model.Address{}
	}
	if addr.Country == "" {
		addr.Country = defaultCountry
	}
	return addr
}

func countryValue(v any) string {
	if m, ok := v.(map[string]any); ok {
		v = m["name"]
	}
	return NormalizeCountry(scalar(v))
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.Join(strings.Fields(t), " ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
