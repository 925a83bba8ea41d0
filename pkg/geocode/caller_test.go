package geocode

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-geocoder/internal/resilience"
)

// newTestCensus points a Census geocoder at srv.
func newTestCensus(srv *httptest.Server, opts ...Option) *Census {
	host := strings.TrimPrefix(srv.URL, "http://")
	base := []Option{WithScheme("http"), WithDomain(host)}
	return NewCensus(append(base, opts...)...)
}

func TestHTTPCaller_GeocodeEndToEnd(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, DefaultBenchmark, r.URL.Query().Get("benchmark"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, singleMatchBody)
	}))
	defer srv.Close()

	c := newTestCensus(srv)
	loc, err := c.Geocode(context.Background(), Structured{
		FieldStreet: "175 5th Avenue", FieldCity: "NYC", FieldZip: "10010",
	})
	require.NoError(t, err)
	require.NotNil(t, loc)

	assert.Equal(t, "/geocoder/locations/address", gotPath)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "175 5TH AVE, NEW YORK, NY, 10010", loc.Address)
	assert.InDelta(t, 40.741043, *loc.Latitude, 1e-9)
}

func TestHTTPCaller_CustomUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	c := newTestCensus(srv, WithUserAgent("my_user_agent/1.0"))
	loc, err := c.Geocode(context.Background(), FreeForm("Invalid address with no expected results"))
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.Equal(t, "my_user_agent/1.0", gotUA)
}

func TestHTTPCaller_InvalidBenchmark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors": ["Invalid benchmark"], "status": "400"}`)
	}))
	defer srv.Close()

	c := newTestCensus(srv, WithBenchmark("Invalid_benchmark"))
	loc, err := c.Geocode(context.Background(), FreeForm("175 5th Avenue NYC"))
	require.Error(t, err)
	assert.Nil(t, loc)
	assert.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, ErrService)
	assert.Contains(t, err.Error(), "Invalid benchmark")
}

func TestHTTPCaller_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrQuery},
		{http.StatusRequestURITooLong, ErrQuery},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusProxyAuthRequired, ErrAuthentication},
		{http.StatusPaymentRequired, ErrQuotaExceeded},
		{http.StatusForbidden, ErrInsufficientPrivileges},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusGatewayTimeout, ErrTimedOut},
		{http.StatusInternalServerError, ErrService},
		{http.StatusNotFound, ErrService},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPCaller().Call(context.Background(), srv.URL, time.Second)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrService)
		})
	}
}

func TestHTTPCaller_RateLimitedRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller().Call(context.Background(), srv.URL, time.Second)
	require.Error(t, err)

	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestHTTPCaller_TimedOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()
	defer close(release)

	c := newTestCensus(srv)
	_, err := c.Geocode(context.Background(), FreeForm("slow"), WithCallTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestHTTPCaller_ConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPCaller().Call(context.Background(), addr, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPCaller_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller().Call(context.Background(), srv.URL, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestHTTPCaller_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body, err := NewHTTPCaller().Call(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestHTTPCaller_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, singleMatchBody)
	}))
	defer srv.Close()

	retry := resilience.FromAttempts(3)
	retry.InitialBackoff = time.Millisecond
	retry.JitterFraction = 0

	c := newTestCensus(srv, WithCallerOptions(WithCallerRetry(retry)))
	loc, err := c.Geocode(context.Background(), FreeForm("175 5th Avenue NYC"))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPCaller_NoRetryOnQueryError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	retry := resilience.FromAttempts(3)
	retry.InitialBackoff = time.Millisecond

	_, err := NewHTTPCaller(WithCallerRetry(retry)).Call(context.Background(), srv.URL, time.Second)
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPCaller_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller().Call(context.Background(), srv.URL, time.Second)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPCaller_RateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	caller := NewHTTPCaller(WithCallerRateLimit(1000))
	require.NotNil(t, caller.limiter)
	for range 3 {
		_, err := caller.Call(context.Background(), srv.URL, time.Second)
		require.NoError(t, err)
	}

	assert.Nil(t, NewHTTPCaller(WithCallerRateLimit(0)).limiter)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5", now))
	assert.Equal(t, time.Minute, parseRetryAfter("Mon, 01 Jan 2024 12:01:00 GMT", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage", now))
}

func TestNewHTTPCaller_TransportOptions(t *testing.T) {
	proxy, err := url.Parse("http://proxy.internal:3128")
	require.NoError(t, err)
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	c := NewHTTPCaller(
		WithCallerUserAgent("my_user_agent/1.0"),
		WithCallerProxy(proxy),
		WithCallerTLSConfig(tc),
	)
	assert.Equal(t, "my_user_agent/1.0", c.UserAgent())

	tr, ok := c.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Same(t, tc, tr.TLSClientConfig)

	req := httptest.NewRequest(http.MethodGet, "https://geocoding.geo.census.gov/", nil)
	got, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxy.String(), got.String())

	assert.Equal(t, DefaultUserAgent, NewHTTPCaller(WithCallerUserAgent("")).UserAgent())
}
