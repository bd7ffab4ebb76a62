package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/storefront-cli/internal/catalog"
	"github.com/sells-group/storefront-cli/internal/domain"
	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/scrape"
)

// siteServer serves fixed bodies by path (404 otherwise) and counts hits.
type siteServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSiteServer(t *testing.T, pages map[string]string) *siteServer {
	t.Helper()
	s := &siteServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *siteServer) hit(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *siteServer) target() domain.Target {
	return domain.Target{Domain: "acme.com", BaseURL: s.URL}
}

func newEnricher() *Enricher {
	return New(scrape.NewClient(scrape.Options{}), catalog.Default())
}

func TestEnrich_ContactTierWins(t *testing.T) {
	srv := newSiteServer(t, map[string]string{
		"/pages/contact-us": `<html><body><div class="contact-info">
Email: <a href="mailto:hi@acme.com">write us</a> Call (512) 555-0100<br>
100 Congress Ave, Austin, TX 78701</div></body></html>`,
		"/pages/about":             `<p>200 Main St, Suite 5, Dallas, TX 75201</p>`,
		"/policies/shipping-policy": `<p>We offer Local Pickup at our store.</p>`,
	})

	rec := newEnricher().Enrich(context.Background(), srv.target())

	assert.Equal(t, "hi@acme.com", rec.Email)
	assert.Equal(t, "(512) 555-0100", rec.Phone)
	assert.Equal(t, model.Address{Street: "100 Congress Ave", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"}, rec.Address)
	assert.Equal(t, SourceContact, rec.AddressSource)
	assert.True(t, rec.HasLocalDelivery)

	assert.Equal(t, 1, srv.hit("/pages/contact"))
	assert.Equal(t, 1, srv.hit("/pages/contact-us"))
	assert.Zero(t, srv.hit("/contact"), "contact tier stops at first 200")
	assert.Zero(t, srv.hit("/pages/about"), "about tier never reached")
	assert.Zero(t, srv.hit("/"), "homepage not needed once street is known")
}

func TestEnrich_ContactPageWithoutAddressStillStopsTier(t *testing.T) {
	srv := newSiteServer(t, map[string]string{
		"/pages/contact": `<p>Email hello@acme.com</p>`,
		"/contact":       `<p>9 Dock Rd, Reno, NV 89501</p>`,
		"/":              `<html><body><footer>no address here</footer></body></html>`,
	})

	rec := newEnricher().Enrich(context.Background(), srv.target())

	assert.Equal(t, "hello@acme.com", rec.Email)
	assert.True(t, rec.Address.IsEmpty())
	assert.Zero(t, srv.hit("/contact"))
	assert.Equal(t, 1, srv.hit("/pages/about"))
}

func TestEnrich_AboutUpgradesPartialFooterAddress(t *testing.T) {
	srv := newSiteServer(t, map[string]string{
		"/": `<html><body><main>New arrivals 123 items</main>
<footer><p>Austin, TX 78701</p><a href="tel:5125550100">Call</a></footer></body></html>`,
		"/pages/about":    `<p>Our story</p>`,
		"/pages/about-us": `<p>Find us at 12 Main St, Austin, TX 78702</p>`,
	})

	rec := newEnricher().Enrich(context.Background(), srv.target())

	assert.Equal(t, "5125550100", rec.Phone)
	assert.Equal(t, model.Address{Street: "12 Main St", City: "Austin", State: "TX", ZipCode: "78702", Country: "US"}, rec.Address)
	assert.Equal(t, SourceAbout, rec.AddressSource)
	assert.Zero(t, srv.hit("/pages/locations"))
	assert.False(t, rec.HasLocalDelivery)
}

func TestEnrich_JSONLDFallbackSharesHomepage(t *testing.T) {
	srv := newSiteServer(t, map[string]string{
		"/": `<html><head><script type="application/ld+json">
{"@type":"Store","address":{"streetAddress":"77 Pike St","addressLocality":"Seattle","addressRegion":"WA","postalCode":"98101"}}
</script></head><body><footer>Thanks for shopping</footer></body></html>`,
		"/pages/shipping": `<p>Same-Day Delivery available in Seattle</p>`,
	})

	rec := newEnricher().Enrich(context.Background(), srv.target())

	assert.Equal(t, model.Address{Street: "77 Pike St", City: "Seattle", State: "WA", ZipCode: "98101", Country: "US"}, rec.Address)
	assert.Equal(t, SourceJSONLD, rec.AddressSource)
	assert.True(t, rec.HasLocalDelivery)
	assert.Equal(t, 1, srv.hit("/"), "homepage fetched once for footer and structured data")
	assert.Equal(t, 1, srv.hit("/about"))
}

func TestEnrich_EverythingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := newEnricher().Enrich(context.Background(), domain.Target{Domain: "acme.com", BaseURL: srv.URL})
	assert.Equal(t, model.ContactRecord{}, rec)
}

func TestEnrich_ShippingPhraseOnSecondPage(t *testing.T) {
	srv := newSiteServer(t, map[string]string{
		"/pages/shipping":           `<p>We ship nationwide.</p>`,
		"/policies/shipping-policy": `<p>We also deliver locally within 10 miles.</p>`,
	})

	rec := newEnricher().Enrich(context.Background(), srv.target())
	assert.True(t, rec.HasLocalDelivery)
}
