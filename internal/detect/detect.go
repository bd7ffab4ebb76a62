// Package detect decides whether a storefront runs on the target platform
// and whether it shows premium-tier signals.
package detect

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/catalog"
	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/scrape"
)

// Detector fetches a homepage and classifies it against a Signal Catalog.
type Detector struct {
	fetcher scrape.Fetcher
	cat     *catalog.Catalog
	script  *regexp.Regexp
}

// New creates a Detector. The catalog must not be modified afterwards.
func New(fetcher scrape.Fetcher, cat *catalog.Catalog) *Detector {
	return &Detector{
		fetcher: fetcher,
		cat:     cat,
		script:  customScriptRe(cat.Premium.CustomScriptMarker),
	}
}

// Detect fetches the target's homepage and classifies it. Fetch failures are
// reported through Detection.Error, never returned.
func (d *Detector) Detect(ctx context.Context, target domain.Target) model.Detection {
	page, err := d.fetcher.Fetch(ctx, target.URL("/"))
	if err != nil {
		det := model.Detection{Error: failureReason(err)}
		zap.L().Debug("detect: homepage fetch failed",
			zap.String("domain", target.Domain),
			zap.String("reason", det.Error),
		)
		return det
	}

	det := classify(d.cat, d.script, page.Body)
	det.FinalURL = page.FinalURL
	return det
}

// Classify runs detection over an already fetched body.
func Classify(cat *catalog.Catalog, body []byte) model.Detection {
	return classify(cat, customScriptRe(cat.Premium.CustomScriptMarker), body)
}

func classify(cat *catalog.Catalog, script *regexp.Regexp, body []byte) model.Detection {
	var det model.Detection
	html := string(body)

	for _, fp := range cat.Detection.Fingerprints {
		if strings.Contains(html, fp) {
			det.IsPlatform = true
			det.Method = fp
			break
		}
	}
	if !det.IsPlatform {
		return det
	}

	det.Signals, det.IsPremium = premiumSignals(cat, script, html)
	return det
}

// premiumSignals evaluates every premium signal in a fixed order. Decisive
// signals set premium on their own; any signal counts toward the threshold.
func premiumSignals(cat *catalog.Catalog, script *regexp.Regexp, html string) ([]string, bool) {
	p := cat.Premium
	lower := strings.ToLower(html)

	var signals []string
	decisive := false

	if hasCustomCheckout(html, p.StandardCheckoutHost) {
		signals = append(signals, catalog.SignalCustomCheckout)
		decisive = true
	}

	for _, m := range p.HeadlessMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			signals = append(signals, catalog.SignalHeadless)
			decisive = true
			break
		}
	}

	if script != nil && script.MatchString(html) {
		signals = append(signals, catalog.SignalCustomScript)
	}

	for _, app := range p.Apps {
		if app != "" && strings.Contains(lower, strings.ToLower(app)) {
			signals = append(signals, p.AppPrefix+app)
			decisive = true
		}
	}

	if p.MultiCurrencyAttr != "" && strings.Count(html, p.MultiCurrencyAttr) >= p.MultiCurrencyMin {
		signals = append(signals, catalog.SignalMultiCurrency)
	}

	return signals, decisive || len(signals) >= p.Threshold
}

// hasCustomCheckout looks for an absolute checkout link (anchor or form) on
// a checkout.* host other than the platform's shared checkout host.
func hasCustomCheckout(html, standardHost string) bool {
	if !strings.Contains(html, "checkout.") {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return false
	}

	found := false
	check := func(raw string) {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" {
			return
		}
		host := strings.ToLower(u.Hostname())
		if strings.HasPrefix(host, "checkout.") && host != strings.ToLower(standardHost) {
			found = true
		}
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		check(href)
		return !found
	})
	if found {
		return true
	}
	doc.Find("form[action]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		check(action)
		return !found
	})
	return found
}

func customScriptRe(marker string) *regexp.Regexp {
	if marker == "" {
		return nil
	}
	return regexp.MustCompile(`<script[^>]*src=["'][^"']*` + regexp.QuoteMeta(marker) + `[^"']*\.js`)
}

func failureReason(err error) string {
	var fe *scrape.FetchError
	if errors.As(err, &fe) {
		return fe.Reason()
	}
	return err.Error()
}
