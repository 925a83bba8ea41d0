package geocode

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/census-geocoder/internal/resilience"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "census-geocoder/1.0"

// Caller performs the network round trip for a geocoder. It returns the
// decoded JSON body, or nil when the body is empty, and signals failures
// with the classified errors of this package.
type Caller interface {
	Call(ctx context.Context, rawURL string, timeout time.Duration) (any, error)
}

// CallerOption configures an HTTPCaller.
type CallerOption func(*HTTPCaller)

// WithCallerUserAgent sets the User-Agent header.
func WithCallerUserAgent(ua string) CallerOption {
	return func(c *HTTPCaller) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCallerProxy routes requests through the given proxy.
func WithCallerProxy(proxy *url.URL) CallerOption {
	return func(c *HTTPCaller) {
		c.proxy = proxy
	}
}

// WithCallerTLSConfig sets the TLS configuration used for https endpoints.
func WithCallerTLSConfig(tc *tls.Config) CallerOption {
	return func(c *HTTPCaller) {
		c.tlsConfig = tc
	}
}

// WithCallerHTTPClient replaces the underlying HTTP client. Proxy and TLS
// options are ignored when a client is supplied.
func WithCallerHTTPClient(hc *http.Client) CallerOption {
	return func(c *HTTPCaller) {
		c.http = hc
	}
}

// WithCallerRateLimit caps outgoing requests per second. Zero disables it.
func WithCallerRateLimit(rps float64) CallerOption {
	return func(c *HTTPCaller) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCallerRetry sets the retry policy. Only timed-out, unavailable and
// rate-limited errors are retried.
func WithCallerRetry(cfg resilience.RetryConfig) CallerOption {
	return func(c *HTTPCaller) {
		c.retry = cfg
	}
}

// HTTPCaller is the net/http implementation of Caller.
type HTTPCaller struct {
	http      *http.Client
	userAgent string
	proxy     *url.URL
	tlsConfig *tls.Config
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewHTTPCaller creates an HTTPCaller. Without a retry option each call is
// attempted once.
func NewHTTPCaller(opts ...CallerOption) *HTTPCaller {
	c := &HTTPCaller{
		userAgent: DefaultUserAgent,
		retry:     resilience.RetryConfig{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		proxy := http.ProxyFromEnvironment
		if c.proxy != nil {
			proxy = http.ProxyURL(c.proxy)
		}
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:               proxy,
				TLSClientConfig:     c.tlsConfig,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.retry.ShouldRetry == nil {
		c.retry.ShouldRetry = isRetryable
	}
	return c
}

// UserAgent returns the User-Agent header value sent with each request.
func (c *HTTPCaller) UserAgent() string { return c.userAgent }

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, rawURL string, timeout time.Duration) (any, error) {
	reqID := uuid.NewString()
	retry := c.retry
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("geocode: retrying request",
			zap.String("request_id", reqID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (any, error) {
		return c.do(ctx, reqID, rawURL, timeout)
	})
}

func (c *HTTPCaller) do(ctx context.Context, reqID, rawURL string, timeout time.Duration) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(ctx, err)
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(ErrQuery, "geocode: build request: "+err.Error())
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	zap.L().Debug("geocode: response",
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, eris.Wrapf(ErrParse, "geocode: decode response: %v", err)
	}
	return decoded, nil
}

func statusError(resp *http.Response, body []byte) error {
	kind := errorForStatus(resp.StatusCode)
	msg := truncate(string(bytes.TrimSpace(body)), 256)
	if errors.Is(kind, ErrRateLimited) {
		return eris.Wrapf(&RateLimitedError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:        kind,
		}, "geocode: status %d: %s", resp.StatusCode, msg)
	}
	return eris.Wrapf(kind, "geocode: status %d: %s", resp.StatusCode, msg)
}

// classifyTransportError maps net/http failures onto ErrTimedOut or ErrUnavailable.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return eris.Wrap(err, "geocode: request canceled")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return eris.Wrapf(ErrTimedOut, "geocode: %v", err)
	}
	return eris.Wrapf(ErrUnavailable, "geocode: %v", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
