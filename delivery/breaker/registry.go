package breaker

import "sync"

/* Registry keys breaker state by endpoint URL so failures on one endpoint
 * never open the circuit for another. Breakers are created lazily on first
 * use and live for the registry's lifetime.
 */
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Settings

	// onStateChange observes transitions of every registered breaker
	onStateChange func(endpoint string, from, to State)
}

// NewRegistry creates a registry whose breakers default to the given settings
func NewRegistry(defaults Settings) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults.withDefaults(),
	}
}

// OnStateChange registers a transition observer for all breakers. Must be
// called before the registry is shared between goroutines.
func (r *Registry) OnStateChange(fn func(endpoint string, from, to State)) {
	r.onStateChange = fn
}

// For returns the breaker for an endpoint, creating it with the registry
// defaults on first use
func (r *Registry) For(endpoint string) *Breaker {
	return r.ForWith(endpoint, r.defaults)
}

// ForWith returns the breaker for an endpoint, creating it with the given
// settings on first use. Unset fields fall back to the registry defaults.
// Settings only apply on creation; later lookups return the existing
// breaker unchanged.
func (r *Registry) ForWith(endpoint string, settings Settings) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, exists := r.breakers[endpoint]; exists {
		return b
	}

	if settings.FailureWindow <= 0 {
		settings.FailureWindow = r.defaults.FailureWindow
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = r.defaults.FailureThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = r.defaults.Cooldown
	}

	b := New(settings)
	if fn := r.onStateChange; fn != nil {
		b.OnStateChange(func(from, to State) {
			fn(endpoint, from, to)
		})
	}
	r.breakers[endpoint] = b
	return b
}

// Snapshot returns a consistent view of every registered breaker, keyed by
// endpoint URL
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.Lock()
	breakers := make(map[string]*Breaker, len(r.breakers))
	for endpoint, b := range r.breakers {
		breakers[endpoint] = b
	}
	r.mu.Unlock()

	snapshots := make(map[string]Snapshot, len(breakers))
	for endpoint, b := range breakers {
		snapshots[endpoint] = b.Snapshot()
	}
	return snapshots
}
