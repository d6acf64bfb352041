package server

import (
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes bounds ingest bodies, base64 file uploads included. Other routes
// take middleware.DefaultJSONBodyBytes.
const DefaultMaxBodyBytes int64 = 20 * 1024 * 1024

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
	ReplayHandler   *handlers.ReplayHandler
	AuthHandler     *handlers.AuthHandler
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Get("/whoami", cfg.AuthHandler.Whoami)
		r.With(middleware.MaxBodyBytes(middleware.DefaultJSONBodyBytes)).Post("/query", cfg.QueryHandler.Ask)
		r.Get("/documents/{id}", cfg.DocumentHandler.Get)
		r.Get("/documents/{id}/lineage", cfg.DocumentHandler.Lineage)
		r.Get("/replay/{id}", cfg.ReplayHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIngest)

			r.Post("/ingest", cfg.DocumentHandler.Ingest)
			r.Delete("/documents/{id}", cfg.DocumentHandler.Delete)
			r.With(middleware.MaxBodyBytes(middleware.DefaultJSONBodyBytes)).Post("/replay", cfg.ReplayHandler.Create)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(middleware.DefaultJSONBodyBytes))

		r.Post("/orgs", cfg.AuthHandler.CreateOrg)
		r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)
	})

	return r
}
