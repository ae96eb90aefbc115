package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/stampquest/internal/quest"
	"github.com/playperu/stampquest/internal/stampquest"
)

// StartSessionRequest starts a session either from explicit landmarks or
// from a nearby search around StartLocation.
type StartSessionRequest struct {
	StartLocation      *stampquest.Coordinate `json:"startLocation,omitempty"`
	Category           string                 `json:"category,omitempty"`
	SearchRadiusMeters float64                `json:"searchRadiusMeters,omitempty"`
	UnlockRadiusMeters float64                `json:"unlockRadiusMeters,omitempty"`
	Landmarks          []stampquest.Landmark  `json:"landmarks,omitempty"`
}

func handleStartSession(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.StartLocation == nil && len(req.Landmarks) == 0 {
			writeError(w, http.StatusBadRequest, "startLocation or landmarks is required")
			return
		}
		if req.SearchRadiusMeters < 0 || req.UnlockRadiusMeters < 0 {
			writeError(w, http.StatusBadRequest, "radius must not be negative")
			return
		}

		sess, err := svc.StartSession(r.Context(), quest.StartRequest{
			PlayerID:           playerID(r),
			StartLocation:      req.StartLocation,
			Category:           req.Category,
			SearchRadiusMeters: req.SearchRadiusMeters,
			UnlockRadiusMeters: req.UnlockRadiusMeters,
			Landmarks:          req.Landmarks,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

func handleCurrentSession(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.CurrentSession(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleCompleteSession(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.CompleteSession(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleArchivedSessions(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ArchivedSessions(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleArchivedSession(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.ArchivedSession(r.Context(), playerID(r), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}
