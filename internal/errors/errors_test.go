package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballotbox/ballotbox/internal/server/middleware"
)

func requestWithID(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vote", nil)
	ctx := context.WithValue(req.Context(), middleware.RequestIDContextKey, id)
	return req.WithContext(ctx)
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		CodeMalformedPayload:   http.StatusBadRequest,
		CodeInvalidPayload:     http.StatusBadRequest,
		CodeUnknownCandidate:   http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
		CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
		CodeRateLimitExceeded:  http.StatusTooManyRequests,
		CodeExternalService:    http.StatusBadGateway,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeTransportError:     http.StatusInternalServerError,
		CodeInternal:           http.StatusInternalServerError,
		CodeConfigInvalid:      http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}

	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestClientMessages(t *testing.T) {
	assert.Equal(t, "Not found anything on /api/v2/vote, please check if URL is correct.", NotFoundMessage("/api/v2/vote"))
	assert.Equal(t, "The current URL path does not accept 'GET' method. 'POST' should be used instead.", MethodNotAllowedMessage("GET", "POST"))
}

func TestRespondWithErrorClientErrorUsesStatusBody(t *testing.T) {
	req := requestWithID("req-1")
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewNotFoundError(req.Context(), "/nowhere"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"Not found anything on /nowhere, please check if URL is correct."}`, rec.Body.String())
}

func TestRespondWithErrorMalformedPayload(t *testing.T) {
	req := requestWithID("req-2")
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, WrapMalformedPayload(req.Context(), stderrors.New("invalid character 'o'")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"Invalid structure of the body in the message."}`, rec.Body.String())
}

func TestRespondWithErrorRateLimit(t *testing.T) {
	req := requestWithID("req-3")
	rec := httptest.NewRecorder()

	envelope := NewRateLimitError(req.Context(), "10.0.0.1", 120)
	RespondWithError(rec, req, envelope)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"status":"API rate limit exceed!"}`, rec.Body.String())
	assert.Equal(t, "10.0.0.1", envelope.Context["client"])
}

func TestRespondWithErrorServerErrorUsesNameAndDescription(t *testing.T) {
	req := requestWithID("req-4")
	rec := httptest.NewRecorder()

	envelope := WrapTransport(req.Context(), stderrors.New("reset"), "ECONNRESET", "socket hang up")
	RespondWithError(rec, req, envelope)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ECONNRESET", resp.Error.Name)
	assert.Equal(t, "socket hang up", resp.Error.Description)
	assert.Equal(t, CodeTransportError, resp.Error.Code)
	assert.Equal(t, "req-4", resp.Error.RequestID)
	assert.Nil(t, resp.Error.Details)
	assert.Equal(t, gferrors.SeverityHigh, envelope.Severity)
}

func TestRespondWithErrorPlainError(t *testing.T) {
	req := requestWithID("req-5")
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, stderrors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeInternal, resp.Error.Name)
	assert.Equal(t, "unexpected error", resp.Error.Description)
	assert.Equal(t, "req-5", resp.Error.RequestID)
}

func TestRespondWithErrorKeepsPublicDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	envelope := NewServiceUnavailableError("readiness probe failed").
		WithDetails(map[string]interface{}{"probe": "ready"})

	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil), envelope)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Error.Details["probe"])
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestEnvelopesCarryRequestID(t *testing.T) {
	ctx := requestWithID("req-6").Context()

	envelope := NewMethodNotAllowedError(ctx, "GET", "POST")
	assert.Equal(t, "req-6", envelope.CorrelationID)
	assert.Equal(t, CodeMethodNotAllowed, envelope.Code)

	fresh := NewPayloadTooLargeError(context.Background(), 10)
	assert.NotEmpty(t, fresh.CorrelationID)
	assert.Equal(t, "Request body exceeds 10 bytes.", fresh.Message)
}

func TestEnsureEnvelope(t *testing.T) {
	envelope := NewInternalError("already wrapped")
	assert.Same(t, envelope, EnsureEnvelope(envelope))

	fromNil := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, fromNil.Code)
	assert.Equal(t, gferrors.SeverityCritical, fromNil.Severity)

	wrapped := EnsureEnvelope(stderrors.New("disk full"))
	assert.Equal(t, "disk full", wrapped.Context["wrapped_error"])
}

func TestEnsureCorrelationIDFallback(t *testing.T) {
	envelope := EnsureCorrelationID(NewInternalError("x"), context.Background())
	assert.Contains(t, envelope.CorrelationID, "fallback-")

	kept := NewInternalError("y").WithCorrelationID("fixed")
	assert.Equal(t, "fixed", EnsureCorrelationID(kept, context.Background()).CorrelationID)
}
