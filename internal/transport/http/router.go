package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habita/internal/platform/metrics"
	"habita/internal/platform/middleware"
)

// Registrar is anything that mounts routes on the API router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the middleware chain and mounts every handler. Health and
// metrics stay outside the authenticated subtree.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator, handlers ...Registrar) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Recovery(logger))
	root.Use(middleware.RequestID)
	root.Use(middleware.Clock)
	root.Use(middleware.Logger(logger))

	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Method(http.MethodGet, "/metrics", promhttp.Handler())

	api := chi.NewRouter()
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.Latency(m))
	api.Use(middleware.RequireAuth(validator, logger))
	for _, handler := range handlers {
		handler.Register(api)
	}
	root.Mount("/", api)

	return root
}
