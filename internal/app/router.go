package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sproutly/sproutly/internal/gatekeeper"
	"github.com/sproutly/sproutly/internal/observability"
	"github.com/sproutly/sproutly/internal/permissions"
	"github.com/sproutly/sproutly/internal/roles"
	"github.com/sproutly/sproutly/internal/tenant"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	TenantResolver     *tenant.Resolver
	IdentityVerifier   *gatekeeper.Verifier
	ServiceTokens      gatekeeper.TokenPort
	PermissionsHandler *permissions.Handler
	RolesHandler       *roles.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with sproutly defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	requireToken := gatekeeper.RequireToken(params.ServiceTokens, params.Logger)

	// Everything below requires a resolved tenant scope and a verified identity.
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(params.TenantResolver, params.Logger))
		r.Use(params.IdentityVerifier.Middleware(params.Logger))

		r.Route("/permissions", func(r chi.Router) {
			params.PermissionsHandler.MountRoutes(r, requireToken)
		})
		r.Route("/roles", func(r chi.Router) {
			params.RolesHandler.MountRoutes(r, requireToken)
		})
	})

	return r
}
