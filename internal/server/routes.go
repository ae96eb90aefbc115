package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/stampquest/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	svc := deps.Quest
	broker := deps.Broker
	if broker == nil {
		broker = NewBroker()
	}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("StampQuest API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Route("/api", func(r chi.Router) {
		r.Use(playerMiddleware(deps.DefaultPlayerID))

		r.Get("/quest/active", handleActiveQuest(svc, logger))
		r.Post("/quest/proximity", handleProximity(svc, logger))
		r.Post("/quest/verify", handleVerify(svc, logger))
		r.Post("/quest/riddles", handleGenerateRiddles(svc, logger))

		r.Post("/session", handleStartSession(svc, logger))
		r.Get("/session", handleCurrentSession(svc, logger))
		r.Post("/session/complete", handleCompleteSession(svc, logger))
		r.Get("/sessions/archived", handleArchivedSessions(svc, logger))
		r.Get("/sessions/archived/{sessionID}", handleArchivedSession(svc, logger))

		r.Get("/landmarks", handleLandmarks(svc, logger))

		r.Get("/profile", handleProfile(svc, logger))
		r.Delete("/profile", handleResetProfile(svc, logger))
		r.Get("/stats", handleStats(svc, logger))

		r.Get("/events", handleEvents(broker))
		r.Get("/ws", handleWS(broker, logger))
	})

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			notFound = handleSPA(deps.SPADir)
		}
	}
	r.NotFound(notFound)
}
