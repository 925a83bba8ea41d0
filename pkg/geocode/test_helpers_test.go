package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeCaller records requests and replays a canned body or error.
type fakeCaller struct {
	mu       sync.Mutex
	body     any
	err      error
	urls     []string
	timeouts []time.Duration
}

func (f *fakeCaller) Call(_ context.Context, rawURL string, timeout time.Duration) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	f.timeouts = append(f.timeouts, timeout)
	return f.body, f.err
}

// newJSONCaller decodes raw the same way HTTPCaller does.
func newJSONCaller(t *testing.T, raw string) *fakeCaller {
	t.Helper()
	var body any
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return &fakeCaller{body: body}
}

func parseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

const singleMatchBody = `{
	"result": {
		"input": {"benchmark": {"benchmarkName": "Public_AR_Current"}},
		"addressMatches": [{
			"matchedAddress": "175 5TH AVE, NEW YORK, NY, 10010",
			"coordinates": {"x": -73.989944, "y": 40.741043},
			"tigerLine": {"side": "L", "tigerLineId": "59653655"}
		}]
	}
}`
