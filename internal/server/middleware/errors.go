package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
)

// Recovery turns a panic in one request into a 500 for that request only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec)).
				WithCorrelationID(GetRequestID(r.Context()))
			panicErr, _ = panicErr.WithContext(map[string]interface{}{
				"stack_trace": string(debug.Stack()),
			})
			panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Recovered from handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", panicErr.CorrelationID),
					zap.Any("panic", rec))
			}

			writePanicResponse(w, panicErr)
		}()

		next.ServeHTTP(w, r)
	})
}

type panicResponse struct {
	Error panicDetail `json:"error"`
}

type panicDetail struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	RequestID   string `json:"request_id,omitempty"`
}

// writePanicResponse mirrors the shape of internal/errors server responses;
// that package imports this one, so it cannot be used here.
func writePanicResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(panicResponse{Error: panicDetail{
		Name:        "InternalError",
		Description: "The server encountered an unexpected condition.",
		Code:        envelope.Code,
		RequestID:   envelope.CorrelationID,
	}})
}
