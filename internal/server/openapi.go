package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi31"

	"github.com/playperu/stampquest/internal/quest"
	"github.com/playperu/stampquest/internal/stampquest"
)

// HealthResponse documents /healthz: one entry per dependency.
type HealthResponse map[string]struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type playerHeaderParams struct {
	PlayerID string `header:"X-Player-ID" description:"Player identity. Falls back to ?player= and then the server default."`
}

type landmarksQuery struct {
	playerHeaderParams
	Lat      float64 `query:"lat" required:"true"`
	Lng      float64 `query:"lng" required:"true"`
	Category string  `query:"category"`
	Radius   float64 `query:"radius" description:"Search radius in meters."`
}

type archivedSessionPath struct {
	playerHeaderParams
	SessionID string `path:"sessionID"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	ok                                 any
	okStatus                           int
	contentType                        string
	errors                             []int
}

func newOpenAPISpec() *openapi31.Spec {
	r := openapi31.NewReflector()
	r.Spec.Info.Title = "StampQuest API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the StampQuest location game.")

	ops := []operation{
		{
			method: http.MethodGet, path: "/healthz",
			summary:     "Health check",
			description: "Returns the health status of backend dependencies.",
			ok:          HealthResponse{},
		},
		{
			method: http.MethodGet, path: "/api/quest/active",
			summary:     "Active quest",
			description: "Returns the active quest with its riddle, generating the riddle on first access.",
			req:         playerHeaderParams{},
			ok:          quest.ActiveQuest{},
			errors:      []int{http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/quest/proximity",
			summary:     "Check proximity",
			description: "Reports the distance to the active quest's target and whether verification may proceed.",
			req:         LocationRequest{},
			ok:          quest.ProximityResult{},
			errors:      []int{http.StatusBadRequest, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/quest/verify",
			summary:     "Verify quest",
			description: "Submits location and photo evidence for the active quest. Accepts JSON with a base64 image or multipart/form-data.",
			req:         VerifyRequest{},
			ok:          quest.VerifyResult{},
			errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusRequestEntityTooLarge},
		},
		{
			method: http.MethodPost, path: "/api/quest/riddles",
			summary:     "Generate riddles",
			description: "Generates and caches riddles for every quest of the current session.",
			req:         playerHeaderParams{},
			ok:          stampquest.Session{},
			errors:      []int{http.StatusNotFound},
		},
		{
			method: http.MethodPost, path: "/api/session",
			summary:     "Start session",
			description: "Starts a new session from explicit landmarks or a nearby search, replacing the current one.",
			req:         StartSessionRequest{},
			ok:          stampquest.Session{},
			okStatus:    http.StatusCreated,
			errors:      []int{http.StatusBadRequest},
		},
		{
			method: http.MethodGet, path: "/api/session",
			summary: "Current session",
			req:     playerHeaderParams{},
			ok:      stampquest.Session{},
			errors:  []int{http.StatusNotFound},
		},
		{
			method: http.MethodPost, path: "/api/session/complete",
			summary:     "Complete session",
			description: "Archives the current session and clears it.",
			req:         playerHeaderParams{},
			ok:          quest.CompleteResult{},
			errors:      []int{http.StatusNotFound, http.StatusConflict},
		},
		{
			method: http.MethodGet, path: "/api/sessions/archived",
			summary: "List archived sessions",
			req:     playerHeaderParams{},
			ok:      []stampquest.ArchiveEntry{},
		},
		{
			method: http.MethodGet, path: "/api/sessions/archived/{sessionID}",
			summary: "Get archived session",
			req:     archivedSessionPath{},
			ok:      stampquest.Session{},
			errors:  []int{http.StatusNotFound},
		},
		{
			method: http.MethodGet, path: "/api/landmarks",
			summary:     "Nearby landmarks",
			description: "Lists candidate places around a point, nearest first.",
			req:         landmarksQuery{},
			ok:          []quest.NearbyPlace{},
			errors:      []int{http.StatusBadRequest},
		},
		{
			method: http.MethodGet, path: "/api/profile",
			summary: "Player profile",
			req:     playerHeaderParams{},
			ok:      stampquest.Profile{},
		},
		{
			method: http.MethodDelete, path: "/api/profile",
			summary:     "Reset profile",
			description: "Clears stamps, badges and points.",
			req:         playerHeaderParams{},
			ok:          stampquest.Profile{},
			errors:      []int{http.StatusConflict},
		},
		{
			method: http.MethodGet, path: "/api/stats",
			summary: "Player statistics",
			req:     playerHeaderParams{},
			ok:      quest.Stats{},
		},
		{
			method: http.MethodGet, path: "/api/events",
			summary:     "SSE event stream",
			description: "Server-Sent Events stream of the player's game events.",
			req:         playerHeaderParams{},
			contentType: "text/event-stream",
		},
		{
			method: http.MethodGet, path: "/api/ws",
			summary:     "WebSocket event stream",
			description: "Upgrades to a WebSocket carrying the player's game events as JSON text frames.",
			req:         playerHeaderParams{},
			okStatus:    http.StatusSwitchingProtocols,
			contentType: "text/plain",
		},
	}

	for _, op := range ops {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		status := op.okStatus
		if status == 0 {
			status = http.StatusOK
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.ok, openapi.WithHTTPStatus(status))
		}
		for _, code := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
