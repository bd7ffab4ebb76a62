// Package uberdirect checks delivery coverage for a store address through
// the Uber Direct delivery quote API.
package uberdirect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storefront-cli/internal/model"
	"github.com/sells-group/storefront-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.uber.com"
	defaultAuthURL = "https://login.uber.com/oauth/v2/token"
	tokenScope     = "eats.deliveries"

	// tokenSkew is subtracted from the token lifetime so a token is never
	// used right at its expiry.
	tokenSkew = 60 * time.Second
)

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets the API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAuthURL sets the OAuth token URL (for testing).
func WithAuthURL(url string) Option {
	return func(c *Client) {
		c.authURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// WithRetry overrides the retry policy for quote requests.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// Client requests delivery quotes with a cached client-credentials token.
// It is safe for concurrent use.
type Client struct {
	clientID     string
	clientSecret string
	customerID   string
	baseURL      string
	authURL      string
	http         *resty.Client
	retry        resilience.RetryConfig
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a delivery quote client.
func NewClient(clientID, clientSecret, customerID string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		customerID:   customerID,
		baseURL:      defaultBaseURL,
		authURL:      defaultAuthURL,
		http:         resty.New(),
		retry:        resilience.DefaultRetryConfig(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetTimeout(10 * time.Second)
	c.retry.OnRetry = resilience.RetryLogger("uberdirect", "delivery_quote")
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type quoteRequest struct {
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
}

// Check reports whether the record's address can be served. Pickup and
// dropoff are both set to the store address: a quote means the area is
// covered, a 422 means it is not. Records without street, city, and state
// are Unknown without a request.
func (c *Client) Check(ctx context.Context, rec model.StoreRecord) (model.Serviceability, error) {
	addr, ok := FormatAddress(rec.Address)
	if !ok {
		return model.Unknown, nil
	}

	result, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (model.Serviceability, error) {
		return c.quote(ctx, addr)
	})
	if err != nil {
		return model.Unknown, eris.Wrapf(err, "uberdirect: check %s", rec.Domain)
	}

	zap.L().Debug("uberdirect: checked store",
		zap.String("domain", rec.Domain),
		zap.String("result", string(result)),
	)
	return result, nil
}

func (c *Client) quote(ctx context.Context, addr string) (model.Serviceability, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return model.Unknown, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(quoteRequest{PickupAddress: addr, DropoffAddress: addr}).
		Post(fmt.Sprintf("%s/v1/customers/%s/delivery_quotes", c.baseURL, c.customerID))
	if err != nil {
		return model.Unknown, resilience.NewTransientError(eris.Wrap(err, "uberdirect: quote request"), 0)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		return model.Serviceable, nil
	case code == http.StatusUnprocessableEntity:
		return model.NotServiceable, nil
	case code == http.StatusUnauthorized:
		c.invalidate(token)
		return model.Unknown, resilience.NewTransientError(eris.New("uberdirect: token rejected"), code)
	case resilience.IsTransientHTTPStatus(code):
		return model.Unknown, resilience.NewTransientError(eris.Errorf("uberdirect: quote status %d", code), code)
	default:
		return model.Unknown, eris.Errorf("uberdirect: quote status %d: %s", code, truncate(resp.String(), 200))
	}
}

// accessToken returns the cached token, requesting a new one when it is
// missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var tok tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"grant_type":    "client_credentials",
			"scope":         tokenScope,
		}).
		SetResult(&tok).
		Post(c.authURL)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "uberdirect: token request"), 0)
	}
	if !resp.IsSuccess() {
		err := eris.Errorf("uberdirect: token status %d", resp.StatusCode())
		if resilience.IsTransientHTTPStatus(resp.StatusCode()) {
			return "", resilience.NewTransientError(err, resp.StatusCode())
		}
		return "", err
	}
	if tok.AccessToken == "" {
		return "", eris.New("uberdirect: token response has no access_token")
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(expiresIn - tokenSkew)
	return c.token, nil
}

func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

// FormatAddress renders "street, city, state zip". It reports false when
// street, city, or state is missing.
func FormatAddress(a model.Address) (string, bool) {
	if a.Street == "" || a.City == "" || a.State == "" {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprintf("%s, %s, %s %s", a.Street, a.City, a.State, a.ZipCode)), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
