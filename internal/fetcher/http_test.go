package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/filings-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	opts.Backoff = time.Millisecond
	if opts.Intervals == nil {
		opts.Intervals = map[string]time.Duration{}
	}
	return NewHTTPFetcher(opts)
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<xbrli:xbrl/>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(HTTPOptions{}).Download(context.Background(), srv.URL+"/filing.xml")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<xbrli:xbrl/>", string(data))
}

func TestGet_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Equal(t, "https://www.nseindia.com/", r.Header.Get("Referer"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{
		Header: http.Header{
			"Referer": {"https://www.nseindia.com/"},
			"Accept":  {"text/html"},
		},
	})
	body, err := f.Get(context.Background(), srv.URL, http.Header{
		"X-Requested-With": {"XMLHttpRequest"},
		"Accept":           {"application/json"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(HTTPOptions{MaxRetries: 3}).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(HTTPOptions{MaxRetries: 2}).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(HTTPOptions{MaxRetries: 3}).Get(context.Background(), srv.URL+"/api/company/NOPE/", nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusOK))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_RateLimitedSlowsHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	host := hostOf(t, srv.URL)
	f := newTestFetcher(HTTPOptions{
		MaxRetries: 3,
		Intervals:  map[string]time.Duration{host: 10 * time.Millisecond},
	})
	initial := f.limiters[host].Limit()

	_, err := f.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Less(t, float64(f.limiters[host].Limit()), float64(initial))
}

func TestGet_CircuitOpensPerHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 1})
	for range 5 {
		_, err := f.Get(context.Background(), srv.URL, nil)
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())

	_, err := f.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(5), calls.Load(), "open circuit must not reach the host")
}

func TestGet_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(HTTPOptions{MaxRetries: 5}).Get(ctx, srv.URL, nil)
	require.Error(t, err)
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(100 * time.Millisecond)
	assert.InDelta(t, 10.0, float64(a.Limit()), 1e-9)

	a.OnSuccess()
	assert.InDelta(t, 10.0, float64(a.Limit()), 1e-9, "never above the initial rate")

	a.OnRateLimit()
	assert.InDelta(t, 5.0, float64(a.Limit()), 1e-9)
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 2.5, float64(a.Limit()), 1e-9, "floor is a quarter of the initial rate")

	a.OnSuccess()
	assert.InDelta(t, 3.125, float64(a.Limit()), 1e-9)
	require.NoError(t, a.Wait(context.Background()))
}

func TestDefaultIntervals(t *testing.T) {
	iv := DefaultIntervals()
	assert.Equal(t, 500*time.Millisecond, iv[HostNSE])
	assert.Equal(t, 300*time.Millisecond, iv[HostBSE])
	assert.Equal(t, time.Second, iv[HostScreener])

	f := NewHTTPFetcher(HTTPOptions{})
	require.Contains(t, f.limiters, HostNSE)
	assert.Equal(t, rate.Every(500*time.Millisecond), f.limiters[HostNSE].Limit())
}
