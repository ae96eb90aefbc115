package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/playperu/stampquest/internal/quest"
	"github.com/playperu/stampquest/internal/stampquest"
)

// maxUploadBytes bounds verification request bodies, photo included.
const maxUploadBytes = 10 << 20

type LocationRequest struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Override bool     `json:"override,omitempty"`
}

func (l LocationRequest) coordinate() (stampquest.Coordinate, error) {
	if l.Lat == nil || l.Lng == nil {
		return stampquest.Coordinate{}, fmt.Errorf("%w: lat and lng are required", stampquest.ErrInvalidCoordinate)
	}
	c := stampquest.Coordinate{Lat: *l.Lat, Lng: *l.Lng}
	return c, c.Validate()
}

// VerifyRequest is the JSON form of a verification. Image holds base64
// data, optionally as a data: URL. Multipart uploads carry the same fields
// as form values plus an "image" file part.
type VerifyRequest struct {
	LocationRequest
	Image string `json:"image,omitempty"`
}

func handleActiveQuest(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aq, err := svc.ActiveQuest(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, aq)
	}
}

func handleProximity(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LocationRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		loc, err := req.coordinate()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := svc.CheckProximity(r.Context(), playerID(r), loc, req.Override)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleVerify(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		req, err := decodeVerify(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := svc.Verify(r.Context(), req)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleGenerateRiddles(svc *quest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.GenerateAllRiddles(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func decodeVerify(r *http.Request) (quest.VerifyRequest, error) {
	out := quest.VerifyRequest{PlayerID: playerID(r)}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return out, fmt.Errorf("invalid multipart body: %w", err)
		}
		lat, errLat := strconv.ParseFloat(r.FormValue("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.FormValue("lng"), 64)
		if errLat != nil || errLng != nil {
			return out, fmt.Errorf("%w: lat and lng are required", stampquest.ErrInvalidCoordinate)
		}
		out.Location = stampquest.Coordinate{Lat: lat, Lng: lng}
		out.Override, _ = strconv.ParseBool(r.FormValue("override"))

		f, _, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return out, fmt.Errorf("reading image: %w", err)
		default:
			defer f.Close()
			if out.Image, err = io.ReadAll(f); err != nil {
				return out, fmt.Errorf("reading image: %w", err)
			}
		}
		return out, out.Location.Validate()
	}

	var req VerifyRequest
	if err := readJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return out, err
		}
		return out, errors.New("invalid request body")
	}
	loc, err := req.coordinate()
	if err != nil {
		return out, err
	}
	out.Location = loc
	out.Override = req.Override
	if out.Image, err = decodeImage(req.Image); err != nil {
		return out, err
	}
	return out, nil
}

// decodeImage accepts raw base64 or a data URL such as
// "data:image/jpeg;base64,...". An empty string means no image.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		s = payload
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("image is not valid base64")
	}
	return b, nil
}
