package handlers

import (
	"net/http"

	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
)

// StatsHandler serves the rate limit decision snapshot.
func StatsHandler(source stats.Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			source = stats.Nop{}
		}
		snap, err := source.Snapshot(r.Context())
		if err != nil {
			respondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "Rate limit statistics are unavailable."))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
