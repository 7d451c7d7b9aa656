package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/splax/teamhub/internal/service/team"
)

// writeServiceError maps engine errors onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var partial *team.PartialFailureError
	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":           "operation partially applied",
			"partial_failure": partial,
		})
	case errors.Is(err, team.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, team.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, team.ErrNotFoundOrForbidden), errors.Is(err, team.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, team.ErrConflict), errors.Is(err, team.ErrNonEmptyTeam):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.Error("store deadline exceeded", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusGatewayTimeout, "store timeout")
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
