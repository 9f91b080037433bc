package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
)

// RateLimitHeader reports how many requests the client has left.
const RateLimitHeader = "X-Rate-Limit"

// RejectFunc writes the response for a denied request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, address string, d ratelimit.Decision)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Limiter ratelimit.Limiter
	Stats   stats.Recorder
	// StatsBackend labels stats failure metrics.
	StatsBackend string
	Address      ratelimit.AddressOptions
	// Exempt lists paths that bypass the limiter. An entry also covers its
	// sub-paths.
	Exempt []string
	Reject RejectFunc
	// RouteLabel names the route in stats events. Routing has not run yet
	// when the limiter does, so chi's pattern is not available.
	RouteLabel func(r *http.Request) string
}

// RateLimit counts every non-exempt request against its client address.
// Allowed requests carry X-Rate-Limit; denied requests never reach next.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.Reject == nil {
		opts.Reject = defaultReject
	}
	if opts.RouteLabel == nil {
		opts.RouteLabel = EndpointPattern
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path, opts.Exempt) {
				next.ServeHTTP(w, r)
				return
			}

			address := ratelimit.ClientAddress(r, opts.Address)
			decision := opts.Limiter.Check(r.Context(), address)

			strategy := string(opts.Limiter.Strategy())
			metrics.RecordRateLimitDecision(strategy, decision.Allowed)
			metrics.SetTrackedClients(strategy, opts.Limiter.Len())
			recordStats(r, opts, address, decision.Allowed)

			if !decision.Allowed {
				if secs := retryAfterSeconds(decision.RetryAfter); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				if observability.ServerLogger != nil {
					observability.ServerLogger.Info("Rate limit exceeded",
						zap.String("client", address),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Duration("retry_after", decision.RetryAfter),
						zap.String("request_id", GetRequestID(r.Context())))
				}
				opts.Reject(w, r, address, decision)
				return
			}

			w.Header().Set(RateLimitHeader, strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func recordStats(r *http.Request, opts RateLimitOptions, address string, allowed bool) {
	if opts.Stats == nil {
		return
	}

	err := opts.Stats.Record(r.Context(), stats.Event{
		Key:     address,
		Allowed: allowed,
		Method:  r.Method,
		Path:    opts.RouteLabel(r),
		At:      time.Now(),
	})
	if err == nil {
		return
	}

	metrics.RecordStatsError(opts.StatsBackend)
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to record rate limit stats",
			zap.String("backend", opts.StatsBackend),
			zap.Error(err))
	}
}

// retryAfterSeconds rounds d up to whole seconds for the Retry-After header.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func isExempt(path string, exempt []string) bool {
	for _, p := range exempt {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func defaultReject(w http.ResponseWriter, _ *http.Request, _ string, _ ratelimit.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"status":"API rate limit exceed!"}` + "\n"))
}
