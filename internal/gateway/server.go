package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler constructs the chi mux with all routes wired.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	// Public.
	r.Get("/health", g.handleHealth())
	r.Get("/metrics", g.metrics.Handler().ServeHTTP)

	// Chat surface.
	r.Post("/query", g.handleQuery())
	r.Get("/session/{id}", g.handleGetSession())
	r.Get("/sessions", g.handleListSessions())
	r.Get("/ws/chat", g.handleChat())

	// Admin. Auth only applies when a token is configured.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(g.opts.AuthToken))
		r.Get("/status", g.handleStatus())
		r.Delete("/session/{id}", g.handleDeleteSession())
	})

	return r
}
