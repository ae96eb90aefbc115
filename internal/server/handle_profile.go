package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/stampquest/internal/quest"
	"github.com/playperu/stampquest/internal/stampquest"
)

// handleLandmarks serves GET /api/landmarks?lat=&lng=[&category=][&radius=].
func handleLandmarks(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil {
			writeError(w, http.StatusBadRequest, "lat and lng query parameters are required")
			return
		}
		var radius float64
		if raw := q.Get("radius"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "invalid radius")
				return
			}
			radius = v
		}

		places, err := svc.NearbyLandmarks(r.Context(), stampquest.Coordinate{Lat: lat, Lng: lng}, q.Get("category"), radius)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, places)
	}
}

func handleProfile(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Profile(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleResetProfile(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.ResetProfile(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		logger.Info("profile reset", "player", p.PlayerID)
		writeJSON(w, http.StatusOK, p)
	}
}

func handleStats(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
