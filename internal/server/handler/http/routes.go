// Package http provides the routing and handlers of the storefront edge
// server: backend proxying, the single-page bundle and the operational
// endpoints.
package http

import (
	"fmt"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/middleware"
)

// RouterConfig is what NewRouter needs to know about the deployment.
type RouterConfig struct {
	// APIBase is the backend origin every proxied path goes to.
	APIBase string
	// Static is the built single-page bundle.
	Static fs.FS
}

// NewRouter constructs the edge server handler.
//
// Routes:
//
//	/api/*, /media/*, /en/graphql → backend (reverse proxy)
//	GET /healthz                  → Health
//	GET /metrics                  → Prometheus registry
//	everything else               → SPAHandler
//
// Middleware chain (applied in order): RequestID, RealIP,
// WithRequestLogging, metrics, Recoverer.
func NewRouter(cfg RouterConfig, metrics *middleware.Metrics, logger *zap.Logger) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := url.Parse(cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("api base %q must be absolute", cfg.APIBase)
	}
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(metrics.Middleware)
	r.Use(chiMiddleware.Recoverer)

	api := NewProxy(target, "api", metrics, logger)
	r.Handle(APIPrefix, api)
	r.Handle(APIPrefix+"/*", api)
	r.Handle(MediaPrefix+"/*", NewProxy(target, "media", metrics, logger))
	r.Handle(GraphQLPath, NewProxy(target, "graphql", metrics, logger))

	r.Get("/healthz", Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	spa := NewSPAHandler(cfg.Static, logger)
	r.NotFound(spa.ServeHTTP)
	r.MethodNotAllowed(spa.ServeHTTP)
	return r, nil
}
