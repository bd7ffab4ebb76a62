// Package catalog holds the Signal Catalog: the versioned set of literal
// markers, paths, and thresholds used by the detector and the enricher.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Catalog is the full heuristic configuration. It is immutable once handed
// to a Detector or Enricher.
type Catalog struct {
	Version  string `yaml:"version"`
	Platform string `yaml:"platform"`

	Detection Detection `yaml:"detection"`
	Premium   Premium   `yaml:"premium"`
	Pages     Pages     `yaml:"pages"`

	// LocalDeliveryPhrases are matched case-insensitively against the
	// shipping policy text.
	LocalDeliveryPhrases []string `yaml:"local_delivery_phrases"`
	// DefaultCountry is assigned to free-text address matches, which only
	// recognize US-style state and ZIP tokens.
	DefaultCountry string `yaml:"default_country"`
}

// Detection configures platform identification.
type Detection struct {
	// Fingerprints are literal substrings in priority order. The first one
	// found in a body names the detection method.
	Fingerprints []string `yaml:"fingerprints"`
}

// Premium configures premium-tier evaluation.
type Premium struct {
	// StandardCheckoutHost is the platform's shared checkout host. Checkout
	// links on any other checkout.* host count as a custom checkout domain.
	StandardCheckoutHost string `yaml:"standard_checkout_host"`
	// HeadlessMarkers are matched case-insensitively.
	HeadlessMarkers []string `yaml:"headless_markers"`
	// Apps are premium-exclusive app identifiers, matched case-insensitively.
	Apps      []string `yaml:"apps"`
	AppPrefix string   `yaml:"app_signal_prefix"`
	// CustomScriptMarker is the token looked for in script src attributes.
	CustomScriptMarker string `yaml:"custom_script_marker"`
	// MultiCurrencyAttr must occur at least MultiCurrencyMin times.
	MultiCurrencyAttr string `yaml:"multi_currency_attr"`
	MultiCurrencyMin  int    `yaml:"multi_currency_min"`
	// Threshold is the number of recorded signals that marks a store as
	// premium when no decisive signal did.
	Threshold int `yaml:"threshold"`
}

// Pages lists the enrichment page paths in visiting order.
type Pages struct {
	Contact  []string `yaml:"contact"`
	About    []string `yaml:"about"`
	Shipping []string `yaml:"shipping"`
}

// Signal names recorded by the detector.
const (
	SignalCustomCheckout = "custom_checkout_domain"
	SignalHeadless       = "headless_storefront"
	SignalCustomScript   = "custom_javascript"
	SignalMultiCurrency  = "multi_currency"
)

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Version:  "2026.1",
		Platform: "shopify",
		Detection: Detection{
			Fingerprints: []string{
				"Shopify.theme",
				"shopify-analytics",
				"cdn.shopify.com",
				"monorail-edge.shopifysvc.com",
				"/apps/shopify",
			},
		},
		Premium: Premium{
			StandardCheckoutHost: "checkout.shopify.com",
			HeadlessMarkers:      []string{"storefront-renderer", "hydrogen"},
			Apps:                 []string{"launchpad", "flow.shopify.com", "wholesale"},
			AppPrefix:            "plus_app_",
			CustomScriptMarker:   "custom",
			MultiCurrencyAttr:    "data-currency",
			MultiCurrencyMin:     2,
			Threshold:            2,
		},
		Pages: Pages{
			Contact: []string{"/pages/contact", "/pages/contact-us", "/contact"},
			About: []string{
				"/pages/about",
				"/pages/about-us",
				"/pages/locations",
				"/pages/our-store",
				"/pages/visit-us",
				"/about",
			},
			Shipping: []string{"/pages/shipping", "/policies/shipping-policy"},
		},
		LocalDeliveryPhrases: []string{
			"local delivery",
			"same-day delivery",
			"local pickup",
			"deliver locally",
		},
		DefaultCountry: "US",
	}
}

// Load reads a YAML catalog from path. Keys absent from the file keep their
// built-in values. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	// The YAML may carry a top-level "catalog" key.
	var wrapper struct {
		Catalog yaml.Node `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	if wrapper.Catalog.Kind != 0 {
		err = wrapper.Catalog.Decode(c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the catalog for settings the detector cannot work without.
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return eris.New("catalog: version is required")
	}
	if len(c.Detection.Fingerprints) == 0 {
		return eris.New("catalog: at least one fingerprint is required")
	}
	for i, f := range c.Detection.Fingerprints {
		if f == "" {
			return eris.Errorf("catalog: fingerprint %d is empty", i)
		}
	}
	if c.Premium.Threshold < 1 {
		return eris.Errorf("catalog: premium threshold must be >= 1, got %d", c.Premium.Threshold)
	}
	if c.Premium.MultiCurrencyAttr != "" && c.Premium.MultiCurrencyMin < 2 {
		return eris.Errorf("catalog: multi_currency_min must be >= 2, got %d", c.Premium.MultiCurrencyMin)
	}
	return nil
}

// YAML renders the catalog for display.
func (c *Catalog) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal")
	}
	return out, nil
}
