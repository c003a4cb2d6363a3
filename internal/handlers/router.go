package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"finitefield.org/storefront/internal/platform/httpx"
)

const (
	defaultRequestTimeout = 30 * time.Second
	errorNotFoundCode     = "route_not_found"
)

// RouteRegistrar mounts a group of routes.
type RouteRegistrar func(r chi.Router)

// Option configures NewRouter.
type Option func(*router)

type router struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	timeout     time.Duration
	origins     []string
	storefront  RouteRegistrar
}

// WithMiddlewares runs mw after request id and real ip extraction.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(r *router) { r.middlewares = append(r.middlewares, mw...) }
}

// WithHealthHandlers replaces the default /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(r *router) { r.health = h }
}

// WithRequestTimeout bounds each request. Non-positive values keep the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCORSOrigins allows cross-origin calls from origins.
func WithCORSOrigins(origins ...string) Option {
	return func(r *router) { r.origins = append(r.origins, origins...) }
}

// WithStorefrontRoutes mounts the storefront endpoints.
func WithStorefrontRoutes(reg RouteRegistrar) Option {
	return func(r *router) { r.storefront = reg }
}

// NewRouter builds the HTTP surface. Unknown paths and methods answer with the JSON error
// envelope.
func NewRouter(opts ...Option) chi.Router {
	cfg := router{
		middlewares: []func(http.Handler) http.Handler{middleware.RequestID, middleware.RealIP},
		timeout:     defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	mux := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			mux.Use(mw)
		}
	}
	if len(cfg.origins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "HX-Request", "HX-Current-URL", "X-Client-Locale"},
			ExposedHeaders:   []string{"HX-Trigger", "HX-Refresh", "Content-Language"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	mux.Use(middleware.Timeout(cfg.timeout))

	mux.NotFound(routeNotFound)
	mux.MethodNotAllowed(methodNotAllowed)

	mux.Get("/healthz", cfg.health.Healthz)
	mux.Get("/readyz", cfg.health.Readyz)
	if cfg.storefront != nil {
		mux.Group(func(g chi.Router) { cfg.storefront(g) })
	}
	return mux
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	err := httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", r.URL.Path), http.StatusNotFound)
	httpx.WriteError(r.Context(), w, err)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	err := httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), http.StatusMethodNotAllowed)
	httpx.WriteError(r.Context(), w, err)
}
