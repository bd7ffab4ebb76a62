package enrich

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/storefront-cli/internal/model"
)

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	// US address patterns. The house number must be on the same line as
	// the street name.
	streetCityRe = regexp.MustCompile(`(\d+[ \t]+[^,\n]+),\s*([^,\n]+),\s*([A-Z]{2})\s*(\d{5}(?:-\d{4})?)`)
	streetLineRe = regexp.MustCompile(`(\d+[ \t]+[^\n]+)\n\s*([^,\n]+),\s*([A-Z]{2})\s*(\d{5}(?:-\d{4})?)`)
	cityOnlyRe   = regexp.MustCompile(`([^,\n]+),\s*([A-Z]{2})\s*(\d{5}(?:-\d{4})?)`)

	hintClassRe = regexp.MustCompile(`(?i)address|location|contact`)
)

const hintSelector = "address, [itemtype], div[class], p[class], span[class], section[class], li[class]"

var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// blockTags break text lines so that street and city/state lines stay
// separated the way they render.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

var skipTags = map[string]bool{
	"head": true, "noscript": true, "script": true, "style": true,
	"svg": true, "template": true,
}

// extractContact runs all extraction sub-algorithms over one scope.
func extractContact(sel *goquery.Selection, source, defaultCountry string) model.ContactRecord {
	rec := model.ContactRecord{
		Email: extractEmail(sel),
		Phone: extractPhone(sel),
	}
	if addr, ok := extractAddress(sel, defaultCountry); ok {
		rec.Address = addr
		rec.AddressSource = source
	}
	return rec
}

// extractEmail prefers an explicit mailto link, then the first email token
// in the visible text.
func extractEmail(sel *goquery.Selection) string {
	if v := firstLink(sel, "mailto:"); v != "" {
		if i := strings.IndexByte(v, '?'); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	for _, m := range emailRe.FindAllString(nodeText(sel), -1) {
		if !isAssetName(m) {
			return m
		}
	}
	return ""
}

// extractPhone prefers an explicit tel link, then the first North American
// number in the visible text.
func extractPhone(sel *goquery.Selection) string {
	if v := strings.TrimSpace(firstLink(sel, "tel:")); v != "" {
		return v
	}
	return phoneRe.FindString(nodeText(sel))
}

// extractAddress searches address-hinting elements first, in document
// order, then the whole scope.
func extractAddress(sel *goquery.Selection, defaultCountry string) (model.Address, bool) {
	var found model.Address
	ok := false
	sel.Find(hintSelector).FilterFunction(isAddressHint).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found, ok = parseAddress(nodeText(s), defaultCountry)
		return !ok
	})
	if ok {
		return found, true
	}
	return parseAddress(nodeText(sel), defaultCountry)
}

// addressPattern maps a free-text pattern's submatches onto address fields.
// An index of zero means the pattern does not capture that field.
type addressPattern struct {
	re                        *regexp.Regexp
	street, city, state, zip int
}

// addressPatterns run in order: street with city, then city/state/zip
// alone, then a street on the line above the city.
var addressPatterns = []addressPattern{
	{re: streetCityRe, street: 1, city: 2, state: 3, zip: 4},
	{re: cityOnlyRe, city: 1, state: 2, zip: 3},
	{re: streetLineRe, street: 1, city: 2, state: 3, zip: 4},
}

// parseAddress applies addressPatterns in order and returns the first match
// whose state is a real US state code. All fields of the result come from
// that single match.
func parseAddress(text, defaultCountry string) (model.Address, bool) {
	for _, p := range addressPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if !isStateAbbr(m[p.state]) {
				continue
			}
			addr := model.Address{
				City:    cleanField(m[p.city]),
				State:   m[p.state],
				ZipCode: m[p.zip],
				Country: defaultCountry,
			}
			if p.street > 0 {
				addr.Street = cleanField(m[p.street])
			}
			return addr, true
		}
	}
	return model.Address{}, false
}

func isAddressHint(_ int, s *goquery.Selection) bool {
	if goquery.NodeName(s) == "address" {
		return true
	}
	if it, ok := s.Attr("itemtype"); ok && strings.Contains(it, "PostalAddress") {
		return true
	}
	class, _ := s.Attr("class")
	return hintClassRe.MatchString(class)
}

// firstLink returns the first href with the given scheme, scheme stripped
// and percent-decoding applied.
func firstLink(sel *goquery.Selection, scheme string) string {
	var out string
	sel.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < len(scheme) || !strings.EqualFold(href[:len(scheme)], scheme) {
			return true
		}
		v := href[len(scheme):]
		if dec, err := url.PathUnescape(v); err == nil {
			v = dec
		}
		out = v
		return false
	})
	return out
}

func isAssetName(s string) bool {
	lower := strings.ToLower(s)
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

func cleanField(s string) string {
	return strings.Trim(strings.Join(strings.Fields(s), " "), " ,")
}

// nodeText renders the visible text of a selection with one line per block
// element or <br>, whitespace collapsed within lines.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
