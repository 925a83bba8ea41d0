// Package geocode provides a client for the US Census Geocoder.
package geocode

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDomain is the public Census geocoder host.
	DefaultDomain = "geocoding.geo.census.gov"
	// DefaultBenchmark selects the current public address ranges.
	DefaultBenchmark = "Public_AR_Current"
	// DefaultTimeout applies when neither the client nor the call sets one.
	DefaultTimeout = 10 * time.Second

	geocodePath           = "/geocoder/locations/onelineaddress"
	geocodeStructuredPath = "/geocoder/locations/address"
)

// Option configures a Census geocoder.
type Option func(*censusOpts)

type censusOpts struct {
	domain       string
	scheme       string
	benchmark    string
	formatString string
	timeout      time.Duration
	caller       Caller
	callerOpts   []CallerOption
}

// WithDomain sets the geocoder host. Leading and trailing slashes are trimmed.
func WithDomain(domain string) Option {
	return func(o *censusOpts) { o.domain = domain }
}

// WithScheme sets the URL scheme, "https" by default.
func WithScheme(scheme string) Option {
	return func(o *censusOpts) { o.scheme = scheme }
}

// WithBenchmark selects the locator version to search, e.g. "Public_AR_Census2020".
func WithBenchmark(benchmark string) Option {
	return func(o *censusOpts) { o.benchmark = benchmark }
}

// WithFormatString sets the template a FreeForm query is interpolated into.
// It must contain a single %s verb.
func WithFormatString(format string) Option {
	return func(o *censusOpts) { o.formatString = format }
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *censusOpts) { o.timeout = d }
}

// WithCaller injects the transport. The user agent, proxy and TLS options
// only apply to the default HTTPCaller.
func WithCaller(c Caller) Option {
	return func(o *censusOpts) { o.caller = c }
}

// WithUserAgent sets the User-Agent of the default HTTPCaller.
func WithUserAgent(ua string) Option {
	return func(o *censusOpts) { o.callerOpts = append(o.callerOpts, WithCallerUserAgent(ua)) }
}

// WithProxy routes the default HTTPCaller through proxy.
func WithProxy(proxy *url.URL) Option {
	return func(o *censusOpts) { o.callerOpts = append(o.callerOpts, WithCallerProxy(proxy)) }
}

// WithTLSConfig sets the TLS configuration of the default HTTPCaller.
func WithTLSConfig(tc *tls.Config) Option {
	return func(o *censusOpts) { o.callerOpts = append(o.callerOpts, WithCallerTLSConfig(tc)) }
}

// WithCallerOptions passes options through to the default HTTPCaller.
func WithCallerOptions(opts ...CallerOption) Option {
	return func(o *censusOpts) { o.callerOpts = append(o.callerOpts, opts...) }
}

// Census geocodes addresses with the US Census Geocoder. It holds no
// per-call state and is safe for concurrent use when its Caller is.
type Census struct {
	domain               string
	scheme               string
	benchmark            string
	formatString         string
	timeout              time.Duration
	caller               Caller
	geocodeAPI           string
	geocodeStructuredAPI string
}

// NewCensus creates a Census geocoder with the given options.
func NewCensus(opts ...Option) *Census {
	o := censusOpts{
		domain:       DefaultDomain,
		scheme:       "https",
		benchmark:    DefaultBenchmark,
		formatString: "%s",
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.caller == nil {
		o.caller = NewHTTPCaller(o.callerOpts...)
	}

	c := &Census{
		domain:       strings.Trim(o.domain, "/"),
		scheme:       o.scheme,
		benchmark:    o.benchmark,
		formatString: o.formatString,
		timeout:      o.timeout,
		caller:       o.caller,
	}
	c.geocodeAPI = c.scheme + "://" + c.domain + geocodePath
	c.geocodeStructuredAPI = c.scheme + "://" + c.domain + geocodeStructuredPath
	return c
}

// Domain returns the host requests are sent to.
func (c *Census) Domain() string { return c.domain }

// Benchmark returns the configured benchmark.
func (c *Census) Benchmark() string { return c.benchmark }

// CallOption overrides settings for a single geocode call.
type CallOption func(*callOpts)

type callOpts struct {
	timeout time.Duration
}

// WithCallTimeout overrides the client timeout for one call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *callOpts) { o.timeout = d }
}

// BuildURL returns the request URL for q.
func (c *Census) BuildURL(q Query) (string, error) {
	endpoint, params, err := c.params(q)
	if err != nil {
		return "", err
	}
	return endpoint + "?" + params.Encode(), nil
}

// Geocode returns the first match for q, or nil when nothing matched.
func (c *Census) Geocode(ctx context.Context, q Query, opts ...CallOption) (*Location, error) {
	locs, err := c.geocode(ctx, q, opts)
	if err != nil || len(locs) == 0 {
		return nil, err
	}
	return &locs[0], nil
}

// GeocodeAll returns every match for q in service order, or nil when
// nothing matched.
func (c *Census) GeocodeAll(ctx context.Context, q Query, opts ...CallOption) ([]Location, error) {
	return c.geocode(ctx, q, opts)
}

func (c *Census) geocode(ctx context.Context, q Query, opts []CallOption) ([]Location, error) {
	co := callOpts{timeout: c.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	reqURL, err := c.BuildURL(q)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("census geocode", zap.String("url", reqURL))

	body, err := c.caller.Call(ctx, reqURL, co.timeout)
	if err != nil {
		return nil, err
	}
	return parseMatches(body), nil
}
