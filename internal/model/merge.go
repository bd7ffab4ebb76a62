package model

import "time"

// BetterAddress reports whether candidate should replace current as a unit.
// An empty address is replaced by any non-empty one, and a partial address
// (no street) is replaced by one carrying a street. A complete address is
// never replaced.
func BetterAddress(current, candidate Address) bool {
	if candidate.IsEmpty() {
		return false
	}
	if current.IsEmpty() {
		return true
	}
	return !current.HasStreet() && candidate.HasStreet()
}

// NewRecord assembles a StoreRecord from a detection verdict, the enricher's
// output, and optional seed data. Enrichment data is only attached when the
// candidate was detected as a platform store.
func NewRecord(domain string, det Detection, contact *ContactRecord, seed Seed, now time.Time) StoreRecord {
	rec := StoreRecord{
		Domain:            domain,
		CompanyName:       seed.CompanyName,
		Vertical:          seed.Vertical,
		IsPlatform:        det.IsPlatform,
		IsPremium:         det.IsPlatform && det.IsPremium,
		DetectionSignals:  det.AuditSignals(),
		RevenueEstimate:   seed.RevenueEstimate,
		EmployeesEstimate: seed.EmployeesEstimate,
		RawData:           det.Metadata(),
		DiscoveredAt:      now,
		LastUpdated:       now,
	}
	if !det.IsPlatform {
		return rec
	}

	var merged ContactRecord
	if contact != nil {
		merged = *contact
		scraped := now
		rec.ScrapedAt = &scraped
	}
	merged.Absorb(ContactRecord{
		Email:         seed.Email,
		Phone:         seed.Phone,
		Address:       seed.Address,
		AddressSource: "seed",
	})

	rec.ApplyContact(merged)
	return rec
}

// ApplyContact fills the record's contact fields from an enrichment result
// using the same monotonic rules as Merge.
func (r *StoreRecord) ApplyContact(c ContactRecord) {
	r.Email = fill(r.Email, c.Email)
	r.Phone = fill(r.Phone, c.Phone)
	if BetterAddress(r.Address, c.Address) {
		r.Address = c.Address
		if c.AddressSource != "" {
			if r.RawData == nil {
				r.RawData = make(map[string]string)
			}
			r.RawData["address_source"] = c.AddressSource
		}
	}
	r.HasLocalDelivery = r.HasLocalDelivery || c.HasLocalDelivery
}

// Merge combines a previously persisted record with an incoming one. Fields
// only move from empty to populated: a non-empty value is never replaced by
// an empty one, and the address follows BetterAddress as a unit.
func Merge(existing, incoming StoreRecord, now time.Time) StoreRecord {
	out := existing

	out.IsPlatform = existing.IsPlatform || incoming.IsPlatform
	out.IsPremium = out.IsPlatform && (existing.IsPremium || incoming.IsPremium)
	if len(existing.DetectionSignals) == 0 || (incoming.IsPremium && !existing.IsPremium) {
		if len(incoming.DetectionSignals) > 0 {
			out.DetectionSignals = incoming.DetectionSignals
		}
	}

	out.CompanyName = fill(existing.CompanyName, incoming.CompanyName)
	out.Vertical = fill(existing.Vertical, incoming.Vertical)
	out.Email = fill(existing.Email, incoming.Email)
	out.Phone = fill(existing.Phone, incoming.Phone)
	if BetterAddress(existing.Address, incoming.Address) {
		out.Address = incoming.Address
	}
	out.HasLocalDelivery = existing.HasLocalDelivery || incoming.HasLocalDelivery

	if out.RevenueEstimate == nil {
		out.RevenueEstimate = incoming.RevenueEstimate
	}
	if out.EmployeesEstimate == nil {
		out.EmployeesEstimate = incoming.EmployeesEstimate
	}
	if incoming.IsUberServiceable != nil {
		out.IsUberServiceable = incoming.IsUberServiceable
		out.UberCheckDate = incoming.UberCheckDate
	}

	if len(incoming.RawData) > 0 {
		raw := make(map[string]string, len(existing.RawData)+len(incoming.RawData))
		for k, v := range incoming.RawData {
			raw[k] = v
		}
		for k, v := range existing.RawData {
			raw[k] = v
		}
		out.RawData = raw
	}

	if existing.DiscoveredAt.IsZero() {
		out.DiscoveredAt = incoming.DiscoveredAt
	}
	if incoming.ScrapedAt != nil {
		out.ScrapedAt = incoming.ScrapedAt
	}
	out.LastUpdated = now
	return out
}

func fill(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
