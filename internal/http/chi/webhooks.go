package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/endpoints"
	"github.com/bracketlab/webhook-relay/metrics"
)

/* HTTP layer DTOs for the delivery API
 * Separate from domain entities to avoid leaking internal structure
 */

// eventNamePattern validates event names: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// eventRequest represents a delivery trigger from the rest of the platform
type eventRequest struct {
	Event    string         `json:"event"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// eventResponse summarizes a delivery outcome
type eventResponse struct {
	Delivered      bool           `json:"delivered"`
	Classification string         `json:"classification"`
	StatusCode     int            `json:"status_code,omitempty"`
	Attempts       int            `json:"attempts"`
	ElapsedMs      int64          `json:"elapsed_ms"`
	Response       map[string]any `json:"response,omitempty"`
}

// endpointResponse represents a configured endpoint in the API
type endpointResponse struct {
	EndpointID string `json:"endpoint_id"`
	URL        string `json:"url"`
	MaxRetries int    `json:"max_retries,omitempty"`
	Signed     bool   `json:"signed"`
}

// circuitResponse pairs the breaker snapshot with recent delivery history
type circuitResponse struct {
	EndpointID string            `json:"endpoint_id"`
	URL        string            `json:"url"`
	State      string            `json:"state"`
	Failures   int               `json:"failure_count"`
	OpenedAt   *time.Time        `json:"opened_at,omitempty"`
	Recent     []metrics.Attempt `json:"recent,omitempty"`
}

// circuitSummary is one breaker in the all-circuits view
type circuitSummary struct {
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
}

// verifyRequest carries an inbound signature to check
type verifyRequest struct {
	EndpointID    string `json:"endpoint_id"`
	Payload       string `json:"payload"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	MaxAgeSeconds int    `json:"max_age_seconds"`
}

// verifyResponse reports the verification result
type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// postEvent handles POST /v1/endpoints/{endpoint_id}/events
func postEvent(fleet *delivery.Fleet, loader *endpoints.Loader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpointID := chi.URLParam(r, "endpoint_id")
		if endpointID == "" {
			http.Error(w, "endpoint_id is required", http.StatusBadRequest)
			return
		}

		if _, err := loader.Get(endpointID); err != nil {
			http.Error(w, fmt.Sprintf("endpoint not found: %s", endpointID), http.StatusNotFound)
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if !eventNamePattern.MatchString(req.Event) {
			http.Error(w, fmt.Sprintf("event must be hierarchical and contain only [a-zA-Z0-9_.]: %q", req.Event), http.StatusBadRequest)
			return
		}

		engine, exists := fleet.Engine(endpointID)
		if !exists {
			http.Error(w, fmt.Sprintf("endpoint not found: %s", endpointID), http.StatusNotFound)
			return
		}

		/* A failed webhook never fails the triggering operation: the
		 * outcome is reported in the body, the request itself is accepted
		 */
		outcome := engine.DeliverDetailed(r.Context(), req.Event, req.Data, req.Metadata)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response := eventResponse{
			Delivered:      outcome.Success,
			Classification: outcome.Classification.String(),
			StatusCode:     outcome.StatusCode,
			Attempts:       outcome.Attempts,
			ElapsedMs:      outcome.Elapsed.Milliseconds(),
			Response:       outcome.Response,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getEndpoints handles GET /v1/endpoints
func getEndpoints(loader *endpoints.Loader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all := loader.List()

		responses := make([]endpointResponse, 0, len(all))
		for _, ep := range all {
			responses = append(responses, endpointResponse{
				EndpointID: ep.ID,
				URL:        ep.URL,
				MaxRetries: ep.MaxRetries,
				Signed:     ep.Secret != "",
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(responses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getCircuit handles GET /v1/endpoints/{endpoint_id}/circuit
func getCircuit(fleet *delivery.Fleet, loader *endpoints.Loader, history *metrics.History) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpointID := chi.URLParam(r, "endpoint_id")

		ep, err := loader.Get(endpointID)
		if err != nil {
			http.Error(w, fmt.Sprintf("endpoint not found: %s", endpointID), http.StatusNotFound)
			return
		}

		engine, exists := fleet.Engine(endpointID)
		if !exists {
			http.Error(w, fmt.Sprintf("endpoint not found: %s", endpointID), http.StatusNotFound)
			return
		}

		snapshot := engine.Breaker().Snapshot()
		response := circuitResponse{
			EndpointID: endpointID,
			URL:        ep.URL,
			State:      snapshot.State.String(),
			Failures:   snapshot.FailureCount,
		}
		if !snapshot.OpenedAt.IsZero() {
			openedAt := snapshot.OpenedAt
			response.OpenedAt = &openedAt
		}

		if history != nil {
			recent, err := history.Recent(r.Context(), ep.URL, 20)
			if err == nil {
				response.Recent = recent
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getCircuits handles GET /v1/circuits
// Every breaker the registry knows about, keyed by endpoint URL
func getCircuits(registry *breaker.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshots := registry.Snapshot()

		response := make(map[string]circuitSummary, len(snapshots))
		for endpoint, snap := range snapshots {
			summary := circuitSummary{
				State:        snap.State.String(),
				FailureCount: snap.FailureCount,
			}
			if !snap.OpenedAt.IsZero() {
				openedAt := snap.OpenedAt
				summary.OpenedAt = &openedAt
			}
			response[endpoint] = summary
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postVerify handles POST /v1/signatures/verify
// Used by inbound webhook receivers sharing the platform signing scheme
func postVerify(fleet *delivery.Fleet, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		engine, exists := fleet.Engine(req.EndpointID)
		if !exists {
			http.Error(w, fmt.Sprintf("endpoint not found: %s", req.EndpointID), http.StatusNotFound)
			return
		}

		maxAge := time.Duration(req.MaxAgeSeconds) * time.Second
		if req.MaxAgeSeconds <= 0 {
			maxAge = cfg.GetReplayWindow()
		}

		valid, reason := engine.VerifySignature(req.Payload, req.Signature, req.Timestamp, maxAge)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(verifyResponse{Valid: valid, Reason: reason}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
