// Package model defines the storefront lead records shared by the detector,
// enricher, orchestrator, and repository.
package model

import (
	"time"
)

// Address is a postal address extracted from one source. Fields are written
// together: an Address always comes from a single page or structured-data
// block, never assembled field by field from several sources.
type Address struct {
	Street  string `json:"street_address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

// IsEmpty reports whether no address component is set.
func (a Address) IsEmpty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.ZipCode == "" && a.Country == ""
}

// HasStreet reports whether the address carries a street line.
func (a Address) HasStreet() bool {
	return a.Street != ""
}

// StoreRecord is the persisted, enriched representation of one storefront.
// Empty strings are stored as NULL.
type StoreRecord struct {
	Domain      string `json:"domain"`
	CompanyName string `json:"company_name,omitempty"`
	Vertical    string `json:"vertical,omitempty"`

	IsPlatform       bool     `json:"is_platform"`
	IsPremium        bool     `json:"is_premium"`
	DetectionSignals []string `json:"detection_signals,omitempty"`

	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Address

	HasLocalDelivery bool `json:"has_local_delivery"`

	RevenueEstimate   *float64 `json:"revenue_estimate,omitempty"`
	EmployeesEstimate *int     `json:"employees_estimate,omitempty"`

	IsUberServiceable *bool      `json:"is_uber_serviceable,omitempty"`
	UberCheckDate     *time.Time `json:"uber_check_date,omitempty"`

	RawData map[string]string `json:"raw_data,omitempty"`

	DiscoveredAt time.Time  `json:"discovered_at"`
	ScrapedAt    *time.Time `json:"scraped_at,omitempty"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// ContactRecord is the Enricher's output: the contact, location, and
// commerce-signal subset of a StoreRecord. Any field may be empty.
type ContactRecord struct {
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Address          Address `json:"address"`
	AddressSource    string  `json:"address_source,omitempty"`
	HasLocalDelivery bool    `json:"has_local_delivery"`
}

// Absorb fills empty fields of c from other. The address is taken as a unit
// and only when it is an improvement (see BetterAddress).
func (c *ContactRecord) Absorb(other ContactRecord) {
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.Phone == "" {
		c.Phone = other.Phone
	}
	if BetterAddress(c.Address, other.Address) {
		c.Address = other.Address
		c.AddressSource = other.AddressSource
	}
	c.HasLocalDelivery = c.HasLocalDelivery || other.HasLocalDelivery
}

// Seed is a candidate as handed over by a discovery collaborator, optionally
// carrying data from a seed export. Only Candidate is required.
type Seed struct {
	Candidate         string
	CompanyName       string
	Vertical          string
	Email             string
	Phone             string
	Address           Address
	RevenueEstimate   *float64
	EmployeesEstimate *int
}
