package errors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/ballotbox/ballotbox/internal/server/middleware"
)

// Error codes carried by envelopes.
const (
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeTransportError     = "TRANSPORT_ERROR"
	CodeMalformedPayload   = "MALFORMED_PAYLOAD"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeUnknownCandidate   = "UNKNOWN_CANDIDATE"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
)

// Client-facing messages.
const (
	MsgRateLimitExceeded = "API rate limit exceed!"
	MsgInvalidBody       = "Invalid structure of the body in the message."
)

// NotFoundMessage is the status text for an unmatched path.
func NotFoundMessage(path string) string {
	return fmt.Sprintf("Not found anything on %s, please check if URL is correct.", path)
}

// MethodNotAllowedMessage is the status text for a known path hit with the
// wrong method.
func MethodNotAllowedMessage(method, allowed string) string {
	return fmt.Sprintf("The current URL path does not accept '%s' method. '%s' should be used instead.", method, allowed)
}

// PayloadTooLargeMessage is the status text for an oversized body.
func PayloadTooLargeMessage(limit int64) string {
	return fmt.Sprintf("Request body exceeds %d bytes.", limit)
}

// UnknownCandidateMessage is the status text for a vote on a missing candidate.
func UnknownCandidateMessage(candidate string) string {
	return fmt.Sprintf("Candidate '%s' does not exist.", candidate)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// NewRateLimitError builds the 429 envelope. retryAfter is informational.
func NewRateLimitError(ctx context.Context, address string, retryAfterSeconds int) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(CodeRateLimitExceeded, MsgRateLimitExceeded), ctx)
	envelope, _ = envelope.WithContext(map[string]interface{}{
		"client":              address,
		"retry_after_seconds": retryAfterSeconds,
	})
	return envelope
}

// NewNotFoundError builds the 404 envelope for path.
func NewNotFoundError(ctx context.Context, path string) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(CodeNotFound, NotFoundMessage(path)), ctx)
	envelope, _ = envelope.WithContext(map[string]interface{}{"path": path})
	return envelope
}

// NewMethodNotAllowedError builds the 405 envelope.
func NewMethodNotAllowedError(ctx context.Context, method, allowed string) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(CodeMethodNotAllowed, MethodNotAllowedMessage(method, allowed)), ctx)
	envelope, _ = envelope.WithContext(map[string]interface{}{
		"method":  method,
		"allowed": allowed,
	})
	return envelope
}

// NewPayloadTooLargeError builds the 413 envelope.
func NewPayloadTooLargeError(ctx context.Context, limit int64) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(CodePayloadTooLarge, PayloadTooLargeMessage(limit)), ctx)
	envelope, _ = envelope.WithContext(map[string]interface{}{"max_bytes": limit})
	return envelope
}

// NewUnknownCandidateError builds the 400 envelope for a vote on an unknown
// candidate.
func NewUnknownCandidateError(ctx context.Context, candidate string) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(CodeUnknownCandidate, UnknownCandidateMessage(candidate)), ctx)
	envelope, _ = envelope.WithContext(map[string]interface{}{"candidate": candidate})
	return envelope
}

// WrapMalformedPayload reports a body that is not parseable JSON.
func WrapMalformedPayload(ctx context.Context, err error) *errors.ErrorEnvelope {
	return wrap(ctx, CodeMalformedPayload, err, MsgInvalidBody)
}

// WrapInvalidPayload reports parseable JSON of the wrong shape.
func WrapInvalidPayload(ctx context.Context, err error) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidPayload, err, MsgInvalidBody)
}

// WrapTransport reports a failed body read. name identifies the failure in
// the response body.
func WrapTransport(ctx context.Context, err error, name, message string) *errors.ErrorEnvelope {
	envelope := wrap(ctx, CodeTransportError, err, message)
	envelope = envelope.WithDetails(map[string]interface{}{"name": name})
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := withRequestIDs(errors.NewErrorEnvelope(code, message), ctx)
	return withWrappedError(envelope, err)
}

func withRequestIDs(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	id := extractCorrelationID(ctx)
	return envelope.WithCorrelationID(id).WithTraceID(id)
}

// extractCorrelationID returns the request ID from ctx, or a fresh UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches the request ID from ctx when the envelope has none.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status for an envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status for an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeMalformedPayload, CodeInvalidPayload, CodeUnknownCandidate:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
