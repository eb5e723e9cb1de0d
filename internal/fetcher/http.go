package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/filings-cli/internal/resilience"
)

// Known hosts.
const (
	HostNSE      = "www.nseindia.com"
	HostNSEArch  = "nsearchives.nseindia.com"
	HostBSE      = "www.bseindia.com"
	HostBSEAPI   = "api.bseindia.com"
	HostScreener = "www.screener.in"
)

// maxBody caps a single response read by Get.
const maxBody = 64 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the first retry delay. Zero uses the retry policy default.
	Backoff time.Duration
	// Intervals is the minimum time between requests per host. Hosts not
	// listed are unthrottled.
	Intervals map[string]time.Duration
	// Header is sent with every request.
	Header http.Header
}

// StatusError is a non-200 response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// AdaptiveLimiter is a per-host limiter that slows down on 429 and speeds
// back up on success. The rate never exceeds the initial rate or drops
// below a quarter of it.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	floor   rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter allows one request per interval.
func NewAdaptiveLimiter(interval time.Duration) *AdaptiveLimiter {
	r := rate.Every(interval)
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(r, 1),
		initial: r,
		floor:   r / 4,
		current: r,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by a quarter, capped at the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current >= a.initial {
		return
	}
	a.current = min(a.current*1.25, a.initial)
	a.limiter.SetLimit(a.current)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = max(a.current/2, a.floor)
	a.limiter.SetLimit(a.current)
	zap.L().Warn("rate limited, slowing down",
		zap.Float64("requests_per_sec", float64(a.current)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPFetcher implements Fetcher with per-host throttling, retries on 429
// and 5xx, and a per-host circuit breaker.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*AdaptiveLimiter
	breakers *resilience.Breakers
	policy   resilience.RetryPolicy
}

// DefaultIntervals are the minimum request intervals for the exchanges and
// the reference source.
func DefaultIntervals() map[string]time.Duration {
	return map[string]time.Duration{
		HostNSE:      500 * time.Millisecond,
		HostNSEArch:  500 * time.Millisecond,
		HostBSE:      300 * time.Millisecond,
		HostBSEAPI:   300 * time.Millisecond,
		HostScreener: time.Second,
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "filings-cli/1.0"
	}
	if opts.Intervals == nil {
		opts.Intervals = DefaultIntervals()
	}

	limiters := make(map[string]*AdaptiveLimiter, len(opts.Intervals))
	for host, iv := range opts.Intervals {
		if iv > 0 {
			limiters[host] = NewAdaptiveLimiter(iv)
		}
	}

	policy := resilience.PolicyFor(opts.MaxRetries)
	if opts.Backoff > 0 {
		policy.InitialBackoff = opts.Backoff
		policy.MaxBackoff = 10 * opts.Backoff
	}
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && resilience.IsTransient(err)
	}
	policy.OnRetry = resilience.RetryLogger("http", "fetch")

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
		breakers: resilience.NewBreakers(5, time.Minute),
		policy:   policy,
	}
}

// Download fetches rawURL and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.do(ctx, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	return resp.Body, nil
}

// Get fetches rawURL with extra headers and reads the whole body.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	resp, err := f.do(ctx, rawURL, header)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: get")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body from %s", rawURL)
	}
	return body, nil
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "parse url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, vs := range f.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	lim := f.limiters[u.Host]
	breaker := f.breakers.Get(u.Host)

	return resilience.DoVal(ctx, f.policy, func(ctx context.Context) (*http.Response, error) {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limiter wait")
			}
		}
		if err := breaker.Allow(); err != nil {
			return nil, eris.Wrapf(err, "host %s", u.Host)
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			breaker.Record(err)
			return nil, resilience.NewTransientError(err, 0)
		}

		if resp.StatusCode == http.StatusTooManyRequests && lim != nil {
			lim.OnRateLimit()
		}
		if resilience.IsTransientStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			serr := &StatusError{Code: resp.StatusCode, URL: rawURL}
			breaker.Record(serr)
			return nil, resilience.NewTransientError(serr, resp.StatusCode)
		}

		// The host answered; only transport and server failures trip the breaker.
		breaker.Record(nil)
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
		}
		if lim != nil {
			lim.OnSuccess()
		}
		return resp, nil
	})
}
