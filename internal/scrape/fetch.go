// Package scrape is the fetch client shared by the detector and the enricher:
// one HTTP GET with a fixed identity header and a per-request timeout,
// returning the body or a typed FetchError.
package scrape

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/metrics"
	"github.com/sells-group/storefront-cli/internal/resilience"
)

// DefaultUserAgent is the identity header sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Page is a successfully fetched (HTTP 200) response.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Fetcher fetches a single URL. Implementations must be safe for concurrent
// use. Every failure is a *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Options configures a Client.
type Options struct {
	UserAgent string
	// Timeout bounds each request independently, redirects included.
	Timeout      time.Duration
	MaxBodyBytes int64
	// MaxAttempts is the number of tries for transient failures. 1 means
	// no retry.
	MaxAttempts int
	// Limiter spaces requests per host. Nil disables it.
	Limiter *HostLimiter
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Client is the default Fetcher backed by net/http.
type Client struct {
	http  *http.Client
	opts  Options
	retry resilience.RetryConfig
}

// NewClient creates a Client with defaults applied.
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: opts.Timeout,
			}).DialContext,
			TLSHandshakeTimeout: opts.Timeout,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		}
	}

	retry := resilience.FetchRetryConfig(opts.MaxAttempts)
	retry.OnRetry = resilience.RetryLogger("fetch", "get")

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:  opts,
		retry: retry,
	}
}

// Fetch issues a GET for targetURL, following redirects. Only HTTP 200 is a
// success.
func (c *Client) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	start := time.Now()
	page, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Page, error) {
		return c.fetchOnce(ctx, targetURL)
	})

	outcome := "ok"
	var fe *FetchError
	if errors.As(err, &fe) {
		outcome = string(fe.Kind)
	}
	metrics.ObserveFetch(outcome, time.Since(start))

	if err != nil {
		zap.L().Debug("fetch failed", zap.String("url", targetURL), zap.Error(err))
		return nil, err
	}
	return page, nil
}

func (c *Client) fetchOnce(ctx context.Context, targetURL string) (*Page, error) {
	if u, err := url.Parse(targetURL); err != nil || u.Host == "" {
		return nil, &FetchError{Kind: KindInvalidURL, URL: targetURL, Err: err}
	}

	if err := c.opts.Limiter.Wait(ctx, targetURL); err != nil {
		return nil, &FetchError{Kind: KindTimeout, URL: targetURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: targetURL, Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(targetURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, classifyReadError(targetURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		if blocked, bt := DetectBlock(resp, body); blocked {
			return nil, &FetchError{Kind: KindBlocked, URL: targetURL, StatusCode: resp.StatusCode, Block: bt}
		}
		return nil, &FetchError{Kind: KindStatus, URL: targetURL, StatusCode: resp.StatusCode}
	}

	return &Page{
		URL:        targetURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func classifyTransportError(targetURL string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: targetURL, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: targetURL, Err: err}
}

func classifyReadError(targetURL string, err error) *FetchError {
	fe := classifyTransportError(targetURL, err)
	if fe.Kind == KindNetwork {
		fe.Kind = KindRead
	}
	return fe
}
