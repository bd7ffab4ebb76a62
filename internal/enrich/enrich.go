// Package enrich visits a storefront's public pages for contact, address,
// and local-delivery data.
//
// Pages are visited in a fixed order of tiers. Each page either yields data or
// nothing; fetch and parse failures only mean "no data from this source".
package enrich

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/catalog"
	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/scrape"
)

// Address sources recorded on ContactRecord.AddressSource.
const (
	SourceContact = "contact_page"
	SourceFooter  = "homepage_footer"
	SourceAbout   = "about_page"
	SourceJSONLD  = "json_ld"
)

// Enricher extracts a ContactRecord from a storefront.
type Enricher struct {
	fetcher scrape.Fetcher
	cat     *catalog.Catalog
}

// New creates an Enricher.
func New(fetcher scrape.Fetcher, cat *catalog.Catalog) *Enricher {
	return &Enricher{fetcher: fetcher, cat: cat}
}

// pageSession holds per-call state: the homepage is fetched at most once
// and shared by the footer and structured-data tiers.
type pageSession struct {
	e        *Enricher
	target   domain.Target
	home     *goquery.Document
	homeDone bool
}

// Enrich visits the target and returns whatever was found. The result may
// be empty; it is never an error.
func (e *Enricher) Enrich(ctx context.Context, target domain.Target) model.ContactRecord {
	s := &pageSession{e: e, target: target}
	var rec model.ContactRecord

	e.contactTier(ctx, s, &rec)

	if !rec.Address.HasStreet() {
		if home := s.homepage(ctx); home != nil {
			rec.Absorb(extractContact(footerScope(home), SourceFooter, e.cat.DefaultCountry))
		}
	}

	if !rec.Address.HasStreet() {
		e.aboutTier(ctx, s, &rec)
	}

	if !rec.Address.HasStreet() {
		if home := s.homepage(ctx); home != nil {
			rec.Absorb(extractJSONLD(home.Selection, e.cat.DefaultCountry))
		}
	}

	rec.HasLocalDelivery = e.localDelivery(ctx, s)

	zap.L().Debug("enrich: done",
		zap.String("domain", target.Domain),
		zap.Bool("email", rec.Email != ""),
		zap.Bool("phone", rec.Phone != ""),
		zap.Bool("street", rec.Address.HasStreet()),
		zap.String("address_source", rec.AddressSource),
		zap.Bool("local_delivery", rec.HasLocalDelivery),
	)
	return rec
}

// contactTier parses the first contact page that answers 200 and stops the
// tier there, whether or not it carried an address.
func (e *Enricher) contactTier(ctx context.Context, s *pageSession, rec *model.ContactRecord) {
	for _, path := range e.cat.Pages.Contact {
		doc := s.visit(ctx, path)
		if doc == nil {
			continue
		}
		rec.Absorb(extractContact(doc.Selection, SourceContact, e.cat.DefaultCountry))
		return
	}
}

// aboutTier stops at the first page yielding a street address.
func (e *Enricher) aboutTier(ctx context.Context, s *pageSession, rec *model.ContactRecord) {
	for _, path := range e.cat.Pages.About {
		doc := s.visit(ctx, path)
		if doc == nil {
			continue
		}
		addr, ok := extractAddress(doc.Selection, e.cat.DefaultCountry)
		if !ok || !addr.HasStreet() {
			continue
		}
		rec.Absorb(model.ContactRecord{Address: addr, AddressSource: SourceAbout})
		return
	}
}

// localDelivery scans the shipping policy pages for the first local
// delivery phrase.
func (e *Enricher) localDelivery(ctx context.Context, s *pageSession) bool {
	for _, path := range e.cat.Pages.Shipping {
		doc := s.visit(ctx, path)
		if doc == nil {
			continue
		}
		text := strings.ToLower(strings.Join(strings.Fields(nodeText(doc.Selection)), " "))
		for _, phrase := range e.cat.LocalDeliveryPhrases {
			if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
				return true
			}
		}
	}
	return false
}

// footerScope narrows extraction to the footer landmark when there is one.
func footerScope(doc *goquery.Document) *goquery.Selection {
	if f := doc.Find("footer").First(); f.Length() > 0 {
		return f
	}
	if f := doc.Find(`[role="contentinfo"]`).First(); f.Length() > 0 {
		return f
	}
	return doc.Selection
}

func (s *pageSession) homepage(ctx context.Context) *goquery.Document {
	if !s.homeDone {
		s.home = s.visit(ctx, "/")
		s.homeDone = true
	}
	return s.home
}

func (s *pageSession) visit(ctx context.Context, path string) *goquery.Document {
	target := s.target.URL(path)
	page, err := s.e.fetcher.Fetch(ctx, target)
	if err != nil {
		zap.L().Debug("enrich: page fetch failed", zap.String("url", target), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		zap.L().Debug("enrich: parse failed", zap.String("url", target), zap.Error(err))
		return nil
	}
	return doc
}
