// Package domain normalizes raw candidate strings into the natural key used
// by the store and the base URL used for fetching.
package domain

import (
	"net"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/idna"
)

// ErrInvalid is returned for candidates that cannot name a storefront.
var ErrInvalid = eris.New("domain: invalid candidate")

// Target is a normalized candidate.
type Target struct {
	// Domain is the lowercase, scheme-less, www-less host. It is the
	// StoreRecord natural key.
	Domain string
	// BaseURL is the absolute URL fetched for the homepage, without a
	// trailing slash. The scheme defaults to https and an explicit port is
	// kept.
	BaseURL string
}

// URL joins a path onto the target's base URL.
func (t Target) URL(path string) string {
	if path == "" || path == "/" {
		return t.BaseURL + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.BaseURL + path
}

var profile = idna.New(idna.MapForLookup(), idna.Transitional(true))

// Parse normalizes a raw candidate string (bare domain or URL).
func Parse(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, eris.Wrap(ErrInvalid, "empty")
	}

	scheme := "https"
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"):
		scheme = "http"
	case strings.HasPrefix(lower, "https://"):
	case strings.Contains(lower, "://"):
		return Target{}, eris.Wrapf(ErrInvalid, "unsupported scheme in %q", raw)
	default:
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Target{}, eris.Wrapf(ErrInvalid, "parse %q: %v", raw, err)
	}

	host := u.Host
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if strings.Contains(host, "*") {
		return Target{}, eris.Wrapf(ErrInvalid, "wildcard %q", raw)
	}

	ascii, err := profile.ToASCII(host)
	if err != nil {
		return Target{}, eris.Wrapf(ErrInvalid, "idna %q: %v", raw, err)
	}
	if len(ascii) <= 3 || !strings.Contains(ascii, ".") || net.ParseIP(ascii) != nil {
		return Target{}, eris.Wrapf(ErrInvalid, "not a domain: %q", raw)
	}

	base := ascii
	if port := u.Port(); port != "" {
		base = net.JoinHostPort(ascii, port)
	}

	return Target{
		Domain:  strings.TrimPrefix(ascii, "www."),
		BaseURL: scheme + "://" + base,
	}, nil
}

// Normalize returns only the natural key for raw, or "" when raw is invalid.
func Normalize(raw string) string {
	t, err := Parse(raw)
	if err != nil {
		return ""
	}
	return t.Domain
}
