package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"type":"FeatureCollection"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "test-agent", Timeout: 5 * time.Second})
	body, err := f.Download(context.Background(), srv.URL+"/wfs")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection"}`, string(data))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 1, f.opts.MaxRetries)
	assert.Equal(t, "lidarhd/1.0", f.opts.UserAgent)
	assert.Equal(t, 60*time.Second, f.opts.Timeout)
	assert.Equal(t, rate.Limit(20), f.Limit())
	assert.Equal(t, 20, f.limiter.Burst())
}

func TestDownload_StatusError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 3})
	_, err := f.Download(context.Background(), srv.URL+"/missing")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), attempts.Load(), "client errors are not retried")
}

func TestDownload_SingleAttemptByDefault(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 2})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
}

func TestDownload_ThrottledSlowsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, RatePerSecond: 40})
	for range 5 {
		_, err := f.Download(context.Background(), srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, rate.Limit(10), f.Limit(), "pace never drops below a quarter of the configured rate")
}

func TestDownload_Paced(t *testing.T) {
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		times = append(times, time.Now())
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, RatePerSecond: 2})
	for range 4 {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = body.Close()
	}
	require.Len(t, times, 4)
	assert.GreaterOrEqual(t, times[3].Sub(times[0]), 900*time.Millisecond)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(0, 2*time.Second))
	assert.Equal(t, maxRetryDelay, retryDelay(0, time.Hour))

	d := retryDelay(1, -1)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 1500*time.Millisecond)
	assert.LessOrEqual(t, retryDelay(20, -1), maxRetryDelay+maxRetryDelay/2)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(-1), parseRetryAfter(""))
	assert.Equal(t, time.Duration(-1), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
