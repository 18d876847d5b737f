package fetcher

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "lidarhd/1.0"
	defaultRate      = 20
	maxRetryDelay    = 10 * time.Second
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of attempts per request; 1 disables retries.
	MaxRetries int
	// RatePerSecond paces every request made through the fetcher, whatever
	// the host. Concurrent page workers share it.
	RatePerSecond float64
}

// StatusError is returned for any response other than 200 OK.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return "http " + strconv.Itoa(e.Code) + " from " + e.URL
}

// Retryable reports whether the service may answer differently later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// HTTPFetcher implements Fetcher with a shared request pace and bounded retries.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu      sync.Mutex
	limiter *rate.Limiter
	floor   rate.Limit
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRate
	}
	limit := rate.Limit(opts.RatePerSecond)
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(limit, int(math.Ceil(opts.RatePerSecond))),
		floor:   limit / 4,
	}
}

// Limit returns the current request pace.
func (f *HTTPFetcher) Limit() rate.Limit {
	return f.limiter.Limit()
}

// slowDown halves the pace after a 429, never below a quarter of the configured rate.
func (f *HTTPFetcher) slowDown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.limiter.Limit() / 2
	if next < f.floor {
		next = f.floor
	}
	f.limiter.SetLimit(next)
	zap.L().Warn("fetcher: throttled by service, slowing down", zap.Float64("rate", float64(next)))
}

// Download issues a GET and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: wait for rate limiter")
		}

		body, retryAfter, err := f.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return nil, err
		}
		if attempt+1 >= f.opts.MaxRetries || ctx.Err() != nil {
			break
		}
		zap.L().Debug("fetcher: retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		sleep(ctx, retryDelay(attempt, retryAfter))
	}
	if f.opts.MaxRetries == 1 {
		return nil, lastErr
	}
	return nil, eris.Wrapf(lastErr, "fetcher: gave up after %d attempts", f.opts.MaxRetries)
}

// get performs one attempt. retryAfter is the server's Retry-After hint, or -1.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, -1, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, -1, eris.Wrap(err, "fetcher: get")
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, -1, nil
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		f.slowDown()
	}
	return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &StatusError{Code: resp.StatusCode, URL: rawURL}
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

// retryDelay is exponential from 500ms with up to 50% jitter, capped at
// maxRetryDelay. A server hint takes precedence.
func retryDelay(attempt int, hint time.Duration) time.Duration {
	if hint >= 0 {
		return min(hint, maxRetryDelay)
	}
	d := min(time.Duration(float64(500*time.Millisecond)*math.Pow(2, float64(attempt))), maxRetryDelay)
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
