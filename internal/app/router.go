package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/ledgersync/internal/observability"
	"github.com/odyssey-erp/ledgersync/internal/reconcile"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Handler   *reconcile.Handler
	JobHealth http.HandlerFunc
	Metrics   *observability.Metrics
}

// NewRouter constructs the chi.Router with ledgersync defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.JobHealth != nil {
		r.Get("/jobs/health", params.JobHealth)
	}
	if params.Handler != nil {
		if params.Metrics != nil {
			params.Handler.WithObserver(params.Metrics)
		}
		params.Handler.MountRoutes(r)
	}
	return r
}
