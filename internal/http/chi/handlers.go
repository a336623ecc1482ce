package chi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/endpoints"
	"github.com/bracketlab/webhook-relay/metrics"
)

func Handlers(ctx context.Context, fleet *delivery.Fleet, loader *endpoints.Loader, registry *breaker.Registry, cfg *config.Config, history *metrics.History, metricsHandler http.Handler) *chi.Mux {
	// Logger
	logger := httplog.NewLogger("webhook-relay", httplog.Options{
		JSON: true,
	})
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))

	r.Method(http.MethodPost, "/v1/endpoints/{endpoint_id}/events", postEvent(fleet, loader))
	r.Method(http.MethodGet, "/v1/endpoints", getEndpoints(loader))
	r.Method(http.MethodGet, "/v1/endpoints/{endpoint_id}/circuit", getCircuit(fleet, loader, history))
	r.Method(http.MethodGet, "/v1/circuits", getCircuits(registry))
	r.Method(http.MethodPost, "/v1/signatures/verify", postVerify(fleet, cfg))

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
