package model

import "strings"

// Detection is the Platform Detector's verdict for one candidate.
type Detection struct {
	IsPlatform bool `json:"is_platform"`
	IsPremium  bool `json:"is_premium"`
	// Method is the fingerprint that matched, empty when IsPlatform is false.
	Method string `json:"detection_method,omitempty"`
	// Signals lists premium signals in evaluation order.
	Signals []string `json:"premium_signals,omitempty"`
	// Error is set when the homepage could not be fetched.
	Error    string `json:"error,omitempty"`
	FinalURL string `json:"final_url,omitempty"`
}

// Failed reports whether detection ended in a fetch failure.
func (d Detection) Failed() bool {
	return d.Error != ""
}

// Metadata returns the detection metadata in the flat key/value form
// persisted as raw_data.
func (d Detection) Metadata() map[string]string {
	m := make(map[string]string)
	if d.Method != "" {
		m["detection_method"] = d.Method
	}
	if len(d.Signals) > 0 {
		m["premium_signals"] = strings.Join(d.Signals, ",")
	}
	if d.Error != "" {
		m["error"] = d.Error
	}
	if d.FinalURL != "" {
		m["final_url"] = d.FinalURL
	}
	return m
}

// AuditSignals returns the ordered explanation persisted as
// detection_signals: the matched fingerprint first, then premium signals.
func (d Detection) AuditSignals() []string {
	if !d.IsPlatform {
		return nil
	}
	out := make([]string, 0, len(d.Signals)+1)
	out = append(out, "fingerprint:"+d.Method)
	out = append(out, d.Signals...)
	return out
}

// Serviceability is the tri-state delivery coverage result.
type Serviceability string

const (
	Serviceable    Serviceability = "serviceable"
	NotServiceable Serviceability = "not_serviceable"
	Unknown        Serviceability = "unknown"
)

// Bool converts the result to the nullable column value.
func (s Serviceability) Bool() *bool {
	switch s {
	case Serviceable:
		v := true
		return &v
	case NotServiceable:
		v := false
		return &v
	default:
		return nil
	}
}
