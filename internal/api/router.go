package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/flick-go/internal/auth"
)

// Deps are the node components the API serves.
type Deps struct {
	Node   Node
	Config ConfigSync
	Events EventBus
	// Auth is nil on the companion, which has no backends.
	Auth Authorizer
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Link serves the peer link upgrade at /link when set.
	Link http.Handler
	// APIKey protects /api when non-empty.
	APIKey string
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{node: d.Node, config: d.Config, events: d.Events, auth: d.Auth}

	if d.Link != nil {
		r.Handle("/link", d.Link)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireKey(d.APIKey))

		r.Get("/api", h.getStatus)
		r.Get("/api/status", h.getStatus)

		r.Get("/api/config", h.getConfig)
		r.Put("/api/config", h.putConfig)

		r.Post("/api/commands/{cmd}", h.postCommand)

		if d.Auth != nil {
			r.Post("/api/authorize", h.authorize)
			r.Delete("/api/authorize", h.deauthorize)
			r.Post("/api/backend/reconnect", h.reconnect)
		}

		if d.Events != nil {
			r.Get("/api/subscribe", h.subscribe)
		}
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
