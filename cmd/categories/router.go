// cmd/categories/router.go
package main

import (
	"log/slog"
	"net/http"

	"categoryhub/internal/category"
	"categoryhub/internal/config"
	"categoryhub/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// newRouter mounts the category pages. Mutating routes pass the rate limiter
// before basic auth, so rejected credentials still spend a token.
func newRouter(cfg *config.Config, handler *category.Handler, logger *slog.Logger) (http.Handler, error) {
	auth, err := middleware.BasicAuth(cfg.AdminUser, cfg.AdminPassword, logger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLog(logger))
	router.Use(chimw.Recoverer)
	handler.Register(router,
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		auth,
	)

	return router, nil
}
