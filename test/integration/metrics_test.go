package integration

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/server"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = observability.StopMetrics()
	})
}

// isPermissionError normalizes OS-specific permission errors so we can skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

func loadConfig(t *testing.T, overrides map[string]interface{}) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, _, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

// newTestServer binds to IPv4 loopback explicitly and skips when the
// sandbox refuses to open sockets.
func newTestServer(t *testing.T, cfg *config.Config, recorder stats.Recorder) (*httptest.Server, *http.Client) {
	t.Helper()

	limiter, err := ratelimit.New(ratelimit.Options{
		Strategy: ratelimit.Strategy(cfg.RateLimit.Strategy),
		Limit:    cfg.RateLimit.Limit,
		Window:   cfg.RateLimit.Window,
	})
	require.NoError(t, err)
	t.Cleanup(limiter.Stop)

	srv, err := server.New(cfg, server.Deps{Limiter: limiter, Stats: recorder})
	require.NoError(t, err)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestVoteTrafficMetrics_Integration(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "error"})
	initMetricsOrSkip(t)

	cfg := loadConfig(t, map[string]interface{}{
		"rate_limit.limit":  1000,
		"metrics.port":      observability.GetMetricsPort(),
		"rate_limit.exempt": []string{"/metrics"},
	})
	ts, client := newTestServer(t, cfg, stats.NewMemoryRecorder(false))

	const numRequests = 60
	const numWorkers = 10

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var (
					resp *http.Response
					err  error
				)
				switch reqNum % 3 {
				case 0:
					resp, err = client.Get(ts.URL + "/api/v1/candidates")
				case 1:
					resp, err = client.Post(ts.URL+"/api/v1/vote", "application/json", strings.NewReader(fmt.Sprintf(`{"candidate":%d}`, reqNum)))
				default:
					resp, err = client.Post(ts.URL+"/api/v1/vote", "application/json", strings.NewReader(`{"candidate":"x"}`))
				}
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total")
	assert.Contains(t, metricsContent, "test_ratelimit_decisions_total")
	assert.Contains(t, metricsContent, "test_votes_total")
	assert.True(t, elapsed < 5*time.Second, "load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestRateLimitOverLoopback_Integration(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{
		"rate_limit.limit": 3,
		"metrics.enabled":  false,
	})
	recorder := stats.NewMemoryRecorder(true)
	ts, client := newTestServer(t, cfg, recorder)

	for want := 2; want >= 0; want-- {
		resp, err := client.Get(ts.URL + "/api/v1/candidates")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, fmt.Sprint(want), resp.Header.Get("X-Rate-Limit"))
	}

	resp, err := client.Get(ts.URL + "/api/v1/candidates")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"status":"API rate limit exceed!"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	snap, err := recorder.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Total.Allowed)
	assert.Equal(t, int64(1), snap.Total.Denied)
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	initMetricsOrSkip(t)

	cfg := loadConfig(t, map[string]interface{}{"metrics.port": observability.GetMetricsPort()})
	ts, client := newTestServer(t, cfg, nil)

	resp, err := client.Get(ts.URL + "/api/v1/candidates")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", contentType)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)

	metricLines := 0
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if !strings.HasPrefix(line, "#") && strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			metricLines++
		}
	}
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	cfg := loadConfig(t, nil)
	ts, client := newTestServer(t, cfg, nil)

	resp, err := client.Get(ts.URL + "/api/v1/candidates")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
