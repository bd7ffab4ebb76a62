package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block behind a failed response.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "rate_limit"
)

// DetectBlock inspects a non-200 response for signs of bot protection so the
// failure can be reported as blocked instead of as a plain status error.
// Successful responses are never classified: storefront pages routinely
// embed captcha widgets in contact forms.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil || resp.StatusCode == http.StatusOK {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-mitigated") != "" {
			return true, BlockCloudflare
		}
		if strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return true, BlockCloudflare
	case strings.Contains(lower, "captcha"):
		return true, BlockCaptcha
	}

	return false, BlockNone
}
