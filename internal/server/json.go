package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/stampquest/internal/stampquest"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, stampquest.ErrInvalidCoordinate),
		errors.Is(err, stampquest.ErrInvalidLandmark),
		errors.Is(err, stampquest.ErrEmptySession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stampquest.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, stampquest.ErrNoActiveQuest):
		writeError(w, http.StatusConflict, "no active quest")
	case errors.Is(err, stampquest.ErrStaleState):
		writeError(w, http.StatusConflict, "state changed concurrently, retry the request")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
