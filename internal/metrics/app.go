package metrics

import (
	"time"

	"github.com/ballotbox/ballotbox/internal/observability"
)

// Application metric names.
const (
	RateLimitDecisionsTotal = "ratelimit_decisions_total"
	RateLimitTrackedClients = "ratelimit_tracked_clients"
	VotesTotal              = "votes_total"
	PayloadRejectionsTotal  = "payload_rejections_total"
	RequestBodyBytes        = "request_body_bytes"
	CandidatesListedTotal   = "candidates_listed_total"
	StatsRecordErrorsTotal  = "ratelimit_stats_errors_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
)

// Vote outcomes used as the "outcome" label on VotesTotal.
const (
	VoteAccepted         = "accepted"
	VoteMalformed        = "malformed"
	VoteInvalidShape     = "invalid_shape"
	VoteTooLarge         = "too_large"
	VoteUnknownCandidate = "unknown_candidate"
	VoteTransportError   = "transport_error"
)

// RecordRateLimitDecision counts one limiter verdict.
func RecordRateLimitDecision(strategy string, allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	_ = observability.TelemetrySystem.Counter(RateLimitDecisionsTotal, 1, map[string]string{
		"strategy": strategy,
		"outcome":  outcome,
	})
}

// SetTrackedClients reports how many client addresses the limiter holds.
func SetTrackedClients(strategy string, count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RateLimitTrackedClients, float64(count), map[string]string{
		"strategy": strategy,
	})
}

// RecordVote counts a vote submission by outcome.
func RecordVote(outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(VotesTotal, 1, map[string]string{
		"outcome": outcome,
	})
}

// RecordPayloadRejection counts a payload that failed decoding or validation.
func RecordPayloadRejection(kind, reason string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PayloadRejectionsTotal, 1, map[string]string{
		"kind":   kind,
		"reason": reason,
	})
}

// RecordRequestBody reports the size of a collected request body.
func RecordRequestBody(endpoint string, size int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RequestBodyBytes, float64(size), map[string]string{
		"endpoint": endpoint,
	})
}

// RecordCandidatesListed counts candidate list responses.
func RecordCandidatesListed(source string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(CandidatesListedTotal, 1, map[string]string{
		"source": source,
	})
}

// RecordStatsError counts a failed write to the rate-limit statistics backend.
func RecordStatsError(backend string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(StatsRecordErrorsTotal, 1, map[string]string{
		"backend": backend,
	})
}

// RecordHealthCheck records a health check execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
