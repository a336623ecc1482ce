package delivery

import (
	"github.com/rs/zerolog"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/endpoints"
	"github.com/bracketlab/webhook-relay/metrics"
)

/* Fleet holds one Engine per configured endpoint, all sharing a breaker
 * registry and a recorder. Engines are built once at startup; endpoint
 * configuration is immutable afterwards.
 */
type Fleet struct {
	engines map[string]*Engine
}

// NewFleet builds an engine for every endpoint the loader knows about.
// Breakers come from the registry keyed by endpoint URL, so two endpoint
// IDs pointing at the same URL share failure state.
func NewFleet(loader *endpoints.Loader, cfg *config.Config, registry *breaker.Registry, recorder metrics.Recorder, log zerolog.Logger) *Fleet {
	fleet := &Fleet{
		engines: make(map[string]*Engine),
	}

	for _, ep := range loader.List() {
		b := registry.ForWith(ep.URL, ep.GetBreakerSettings(cfg))
		fleet.engines[ep.ID] = NewEngine(Config{
			Endpoint:   ep.URL,
			Secret:     ep.Secret,
			Timeout:    ep.GetTimeout(cfg),
			MaxRetries: ep.GetMaxRetries(cfg),
			Breaker:    b,
			Recorder:   recorder,
			Logger:     log.With().Str("endpoint_id", ep.ID).Logger(),
		})
	}

	return fleet
}

// Engine returns the engine for an endpoint ID
func (f *Fleet) Engine(endpointID string) (*Engine, bool) {
	engine, exists := f.engines[endpointID]
	return engine, exists
}
