package scrape

import (
	"fmt"

	"github.com/sells-group/storefront-cli/internal/resilience"
)

// FailureKind classifies why a fetch produced no page.
type FailureKind string

const (
	KindTimeout    FailureKind = "timeout"
	KindNetwork    FailureKind = "network"
	KindStatus     FailureKind = "status"
	KindBlocked    FailureKind = "blocked"
	KindRead       FailureKind = "read"
	KindInvalidURL FailureKind = "invalid_url"
)

// FetchError is the typed failure returned by Client.Fetch. Callers treat
// any FetchError as "no data from this source".
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Block      BlockType
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case KindBlocked:
		return fmt.Sprintf("fetch %s: blocked (%s, status %d)", e.URL, e.Block, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindStatus:
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	case KindNetwork, KindRead:
		return resilience.IsTransient(e.Err)
	default:
		return false
	}
}

// Reason returns the short failure description recorded on detections.
func (e *FetchError) Reason() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("status %d", e.StatusCode)
	case KindBlocked:
		return fmt.Sprintf("blocked: %s", e.Block)
	case KindTimeout:
		return "timeout"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}
