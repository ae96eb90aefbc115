package server

import (
	"context"
	"net/http"
	"regexp"
)

type ctxKey int

const ctxKeyPlayer ctxKey = iota

const playerHeader = "X-Player-ID"

var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// playerMiddleware resolves the player from the X-Player-ID header, or the
// player query parameter for EventSource and WebSocket clients that cannot
// set headers. Requests naming neither play as defaultID.
func playerMiddleware(defaultID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(playerHeader)
			if id == "" {
				id = r.URL.Query().Get("player")
			}
			if id == "" {
				id = defaultID
			}
			if !playerIDPattern.MatchString(id) {
				writeError(w, http.StatusBadRequest, "invalid player id")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyPlayer, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func playerIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyPlayer).(string)
	return id
}

func playerID(r *http.Request) string {
	return playerIDFrom(r.Context())
}
