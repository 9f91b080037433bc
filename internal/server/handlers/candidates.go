package handlers

import (
	"net/http"

	"github.com/ballotbox/ballotbox/internal/core/candidates"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
	"github.com/ballotbox/ballotbox/internal/metrics"
)

// ListCandidates serves GET /api/v{N}/candidates.
func (a *API) ListCandidates(w http.ResponseWriter, r *http.Request) {
	store := a.candidates()

	list, err := store.List(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to list candidates."))
		return
	}
	if list == nil {
		list = []candidates.Candidate{}
	}

	metrics.RecordCandidatesListed(store.Source())
	writeJSON(w, http.StatusOK, list)
}
