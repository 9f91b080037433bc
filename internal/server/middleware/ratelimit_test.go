package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/ratelimittest"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/metrics"
)

func newTestLimiter(t *testing.T, limit int) (*ratelimit.ThresholdLimiter, *ratelimittest.ManualClock) {
	t.Helper()
	clock := ratelimittest.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l := ratelimit.NewThresholdLimiter(ratelimit.Options{
		Limit:     limit,
		Window:    2 * time.Minute,
		Clock:     clock,
		Scheduler: clock,
	})
	t.Cleanup(l.Stop)
	return l, clock
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_HeaderCountsDown(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	h := RateLimit(RateLimitOptions{Limiter: limiter})(okHandler())

	for _, want := range []string{"2", "1", "0"} {
		rec := serve(h, http.MethodGet, "/api/v1/candidates", "192.0.2.1:4000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, rec.Header().Get(RateLimitHeader))
	}

	rec := serve(h, http.MethodGet, "/api/v1/candidates", "192.0.2.1:4001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"API rate limit exceed!"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(RateLimitHeader))
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
}

func TestRateLimit_DeniedRequestNeverReachesHandler(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	calls := 0
	h := RateLimit(RateLimitOptions{Limiter: limiter})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	serve(h, http.MethodPost, "/api/v1/vote", "192.0.2.1:1")
	serve(h, http.MethodPost, "/api/v1/vote", "192.0.2.1:1")
	serve(h, http.MethodPost, "/api/v1/vote", "192.0.2.1:1")

	assert.Equal(t, 1, calls)
}

func TestRateLimit_FailsClosedWithoutAddress(t *testing.T) {
	limiter, _ := newTestLimiter(t, 10)
	h := RateLimit(RateLimitOptions{Limiter: limiter})(okHandler())

	rec := serve(h, http.MethodGet, "/api/v1/candidates", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_ExemptPaths(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	h := RateLimit(RateLimitOptions{
		Limiter: limiter,
		Exempt:  []string{"/health/", "/metrics"},
	})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "192.0.2.1:1").Code)
		assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health/ready", "192.0.2.1:1").Code)
		assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/metrics", "192.0.2.1:1").Code)
	}
	assert.Equal(t, 0, limiter.Len())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "192.0.2.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/healthz", "192.0.2.1:1").Code)
}

func TestRateLimit_CustomReject(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	var gotAddress string
	h := RateLimit(RateLimitOptions{
		Limiter: limiter,
		Reject: func(w http.ResponseWriter, r *http.Request, address string, d ratelimit.Decision) {
			gotAddress = address
			assert.False(t, d.Allowed)
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})(okHandler())

	serve(h, http.MethodGet, "/x", "198.51.100.4:9")
	rec := serve(h, http.MethodGet, "/x", "198.51.100.4:9")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "198.51.100.4", gotAddress)
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimit(RateLimitOptions{})(okHandler())

	rec := serve(h, http.MethodGet, "/api/v1/candidates", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(RateLimitHeader))
}

func TestRateLimit_RecordsStats(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	recorder := stats.NewMemoryRecorder(true)
	h := RateLimit(RateLimitOptions{
		Limiter:    limiter,
		Stats:      recorder,
		RouteLabel: func(r *http.Request) string { return r.URL.Path },
	})(okHandler())

	serve(h, http.MethodPost, "/api/v1/vote", "192.0.2.7:1")
	serve(h, http.MethodPost, "/api/v1/vote", "192.0.2.7:1")

	snap, err := recorder.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Counts{Allowed: 1, Denied: 1}, snap.Total)
	assert.Equal(t, stats.Counts{Allowed: 1, Denied: 1}, snap.Routes["POST /api/v1/vote"])
	assert.Equal(t, stats.Counts{Allowed: 1, Denied: 1}, snap.Keys["192.0.2.7"])
}

type brokenRecorder struct{}

func (brokenRecorder) Record(context.Context, stats.Event) error { return errors.New("redis down") }

func TestRateLimit_StatsFailureDoesNotFailRequest(t *testing.T) {
	collector := setupTelemetry(t)
	limiter, _ := newTestLimiter(t, 5)
	h := RateLimit(RateLimitOptions{
		Limiter:      limiter,
		Stats:        brokenRecorder{},
		StatsBackend: "redis",
	})(okHandler())

	rec := serve(h, http.MethodGet, "/api/v1/candidates", "192.0.2.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, collector.CountMetricsByName(metrics.StatsRecordErrorsTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(metrics.RateLimitDecisionsTotal), 0)
}

// hangingRecorder blocks until its context ends, like a Redis that accepts
// connections but never answers.
type hangingRecorder struct{ calls chan struct{} }

func (h hangingRecorder) Record(ctx context.Context, _ stats.Event) error {
	h.calls <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestRateLimit_SlowStatsBackendDoesNotDelayRequests(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100)
	backend := hangingRecorder{calls: make(chan struct{}, 16)}
	async := stats.NewAsyncRecorder(backend, 16, 100*time.Millisecond, nil)
	t.Cleanup(func() { _ = async.Close(context.Background()) })

	h := RateLimit(RateLimitOptions{
		Limiter:      limiter,
		Stats:        async,
		StatsBackend: "redis",
	})(okHandler())

	start := time.Now()
	for i := 0; i < 5; i++ {
		rec := serve(h, http.MethodGet, "/api/v1/candidates", "192.0.2.1:1")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-backend.calls:
	case <-time.After(time.Second):
		t.Fatal("stats event never reached the backend")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(0))
	assert.Equal(t, 0, retryAfterSeconds(-time.Second))
	assert.Equal(t, 1, retryAfterSeconds(10*time.Millisecond))
	assert.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, 120, retryAfterSeconds(2*time.Minute))
}
