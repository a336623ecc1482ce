package metrics

import "time"

// Recorder receives delivery observations from the engine. Implementations
// must be safe for concurrent use; the engine calls them synchronously and
// shields itself from recorder panics, so a misbehaving backend never
// changes a delivery result.
type Recorder interface {
	// RecordSuccess counts a delivered webhook and its end-to-end latency
	RecordSuccess(event, endpoint string, latency time.Duration)

	// RecordFailure counts a failed delivery; code is the HTTP status or
	// an error classification such as "timeout" or "circuit_open"
	RecordFailure(event, endpoint, code string)

	// RecordRetry counts a retry attempt (attempt is 2 for the first retry)
	RecordRetry(event string, attempt int)

	// RecordCircuitOpen counts a breaker opening for an endpoint
	RecordCircuitOpen(endpoint string)

	// SetCircuitState reports the breaker state for an endpoint
	// ("closed", "open" or "half_open")
	SetCircuitState(endpoint, state string)
}

// Nop is a Recorder that discards everything. Useful default for tests and
// minimal wiring.
type Nop struct{}

func (Nop) RecordSuccess(event, endpoint string, latency time.Duration) {}
func (Nop) RecordFailure(event, endpoint, code string)                  {}
func (Nop) RecordRetry(event string, attempt int)                       {}
func (Nop) RecordCircuitOpen(endpoint string)                           {}
func (Nop) SetCircuitState(endpoint, state string)                      {}

// Fanout forwards every observation to all recorders in order
type Fanout []Recorder

func (f Fanout) RecordSuccess(event, endpoint string, latency time.Duration) {
	for _, r := range f {
		r.RecordSuccess(event, endpoint, latency)
	}
}

func (f Fanout) RecordFailure(event, endpoint, code string) {
	for _, r := range f {
		r.RecordFailure(event, endpoint, code)
	}
}

func (f Fanout) RecordRetry(event string, attempt int) {
	for _, r := range f {
		r.RecordRetry(event, attempt)
	}
}

func (f Fanout) RecordCircuitOpen(endpoint string) {
	for _, r := range f {
		r.RecordCircuitOpen(endpoint)
	}
}

func (f Fanout) SetCircuitState(endpoint, state string) {
	for _, r := range f {
		r.SetCircuitState(endpoint, state)
	}
}
