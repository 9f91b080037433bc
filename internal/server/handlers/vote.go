package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/core/body"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/payload"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/server/middleware"
)

// API serves the versioned vote and candidate endpoints.
type API struct {
	Candidates candidates.Store
	// MaxBodyBytes caps request bodies; zero or less means no cap.
	MaxBodyBytes int64
	Encoding     body.Encoding
	// RequireKnownCandidate rejects votes whose candidate the store does
	// not list.
	RequireKnownCandidate bool
}

// VoteAcceptedMessage is the status text returned for an accepted vote.
func VoteAcceptedMessage(candidate string) string {
	return fmt.Sprintf("Vote has been \"given\" on candidate '%s'!", candidate)
}

// CastVote serves POST /api/v{N}/vote.
func (a *API) CastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	raw, err := body.Collect(r.Body,
		body.WithMaxBytes(a.MaxBodyBytes),
		body.WithChunkObserver(func(chunk []byte) {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Debug("Received body chunk",
					zap.Int("bytes", len(chunk)),
					zap.String("request_id", requestID))
			}
		}),
	)
	if err != nil {
		var terr *body.TransportError
		switch {
		case errors.Is(err, body.ErrTooLarge):
			metrics.RecordVote(metrics.VoteTooLarge)
			respondWithError(w, r, apperrors.NewPayloadTooLargeError(ctx, a.MaxBodyBytes))
		case errors.As(err, &terr):
			metrics.RecordVote(metrics.VoteTransportError)
			respondWithError(w, r, apperrors.WrapTransport(ctx, terr.Err, terr.Name, terr.Message))
		default:
			respondWithError(w, r, apperrors.WrapInternal(ctx, err, "Unable to read request body."))
		}
		return
	}
	metrics.RecordRequestBody(middleware.EndpointPattern(r), len(raw))

	text := body.Decode(raw, a.encoding())
	req, err := payload.Decode(payload.KindVote, []byte(text))
	if err != nil {
		var malformed *payload.MalformedError
		if errors.As(err, &malformed) {
			metrics.RecordVote(metrics.VoteMalformed)
			metrics.RecordPayloadRejection(string(payload.KindVote), "malformed")
			respondWithError(w, r, apperrors.WrapMalformedPayload(ctx, err))
			return
		}
		metrics.RecordVote(metrics.VoteInvalidShape)
		metrics.RecordPayloadRejection(string(payload.KindVote), "invalid_shape")
		respondWithError(w, r, apperrors.WrapInvalidPayload(ctx, err))
		return
	}

	vote := req.(payload.VoteRequest)
	candidate := vote.Candidate.String()

	if a.RequireKnownCandidate {
		ok, err := a.candidates().Exists(ctx, candidate)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInternal(ctx, err, "Unable to look up candidate."))
			return
		}
		if !ok {
			metrics.RecordVote(metrics.VoteUnknownCandidate)
			respondWithError(w, r, apperrors.NewUnknownCandidateError(ctx, candidate))
			return
		}
	}

	metrics.RecordVote(metrics.VoteAccepted)
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Vote accepted",
			zap.String("candidate", candidate),
			zap.String("request_id", requestID))
	}

	writeJSON(w, http.StatusOK, apperrors.StatusResponse{Status: VoteAcceptedMessage(candidate)})
}

func (a *API) candidates() candidates.Store {
	if a == nil || a.Candidates == nil {
		return candidates.StubStore{}
	}
	return a.Candidates
}

func (a *API) encoding() body.Encoding {
	if a == nil || a.Encoding == "" {
		return body.EncodingUTF8
	}
	return a.Encoding
}
