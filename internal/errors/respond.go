package errors

import (
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/server/middleware"
)

// StatusResponse is the body of every 2xx and 4xx API response.
type StatusResponse struct {
	Status string `json:"status"`
}

// HTTPErrorDetail describes a server-side failure.
type HTTPErrorDetail struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Code        string                 `json:"code,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the body of every 5xx response.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes err and writes it as JSON.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope writes the envelope, logging it and emitting error
// metrics. Client errors get {"status": message}; server errors get
// {"error": {"name", "description"}}.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	var body interface{}
	if statusCode < http.StatusInternalServerError {
		body = StatusResponse{Status: envelope.Message}
	} else {
		body = HTTPErrorResponse{Error: HTTPErrorDetail{
			Name:        errorName(envelope),
			Description: envelope.Message,
			Code:        envelope.Code,
			Details:     publicDetails(envelope),
			RequestID:   envelope.CorrelationID,
		}}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func errorName(envelope *errors.ErrorEnvelope) string {
	if name, ok := envelope.Details["name"].(string); ok && name != "" {
		return name
	}
	return envelope.Code
}

// publicDetails returns envelope details minus the name, which is already
// surfaced. Context stays in the logs.
func publicDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if len(envelope.Details) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(envelope.Details))
	for k, v := range envelope.Details {
		if k == "name" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(middleware.EndpointPattern(r), envelope.Code)
	}
}
