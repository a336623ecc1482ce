package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/delivery/signature"
	"github.com/bracketlab/webhook-relay/metrics"
)

// UserAgent identifies the platform on every outbound request
const UserAgent = "Bracketlab-Webhook/1.0"

// Outbound request headers
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-Id"
)

const (
	maxResponseBytes = 1 << 20

	// rawResponseLimit caps the raw-text fallback when a receiver answers
	// with something that is not JSON
	rawResponseLimit = 200
)

// Outcome is the result of one logical delivery (all attempts included).
// It is returned to callers and handed to the metrics recorder; nothing
// here is persisted.
type Outcome struct {
	Success        bool
	Classification Classification
	StatusCode     int
	Response       map[string]any
	Attempts       int
	Elapsed        time.Duration
}

// envelope is the wire body. Struct fields marshal in declaration order and
// map keys marshal sorted, so the signed bytes are stable for a given input.
type envelope struct {
	Event    string         `json:"event"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// Config holds the per-endpoint settings for an Engine
type Config struct {
	// Endpoint is the target URL; empty disables delivery entirely
	Endpoint string

	// Secret signs outbound payloads; empty sends unsigned
	Secret string

	// Timeout bounds a single HTTP attempt (default 10s)
	Timeout time.Duration

	// MaxRetries is the number of attempts per logical delivery (default 3)
	MaxRetries int

	// Breaker guards the endpoint; one is created when nil. Deliveries to
	// the same endpoint from different engines must share the instance.
	Breaker *breaker.Breaker

	// Recorder receives delivery observations (default discards)
	Recorder metrics.Recorder

	Logger zerolog.Logger

	// BackoffBase scales the exponential backoff; attempt n waits
	// BackoffBase << (n-1). Defaults to one second, giving 2s, 4s, 8s.
	// Tests shrink it.
	BackoffBase time.Duration

	// Client overrides the HTTP client (default: fresh client with Timeout)
	Client *http.Client
}

/* Engine performs one logical webhook delivery at a time: breaker check,
 * signed request, bounded retries with exponential backoff, outcome
 * classification. A single Deliver call is strictly sequential; concurrent
 * Deliver calls are safe and share breaker state through the injected
 * breaker.
 *
 * Expected failure modes (HTTP errors, timeouts, open breaker) never
 * surface as errors: callers get a (delivered, response) pair and the
 * triggering business operation is never failed by its webhook.
 */
type Engine struct {
	endpoint    string
	secret      string
	maxRetries  int
	backoffBase time.Duration
	breaker     *breaker.Breaker
	recorder    metrics.Recorder
	client      *http.Client
	log         zerolog.Logger
}

// NewEngine creates an engine for a single endpoint, applying platform
// defaults for anything unset
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New(breaker.Settings{})
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Nop{}
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Engine{
		endpoint:    cfg.Endpoint,
		secret:      cfg.Secret,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		breaker:     cfg.Breaker,
		recorder:    cfg.Recorder,
		client:      cfg.Client,
		log:         cfg.Logger,
	}
}

// Endpoint returns the configured target URL
func (e *Engine) Endpoint() string {
	return e.endpoint
}

// Breaker returns the breaker guarding this engine's endpoint
func (e *Engine) Breaker() *breaker.Breaker {
	return e.breaker
}

// Deliver pushes one event to the configured endpoint and reports whether
// it was delivered, along with the receiver's parsed response when there is
// one. See DeliverDetailed for the full outcome.
func (e *Engine) Deliver(ctx context.Context, event string, data, metadata map[string]any) (bool, map[string]any) {
	outcome := e.DeliverDetailed(ctx, event, data, metadata)
	return outcome.Success, outcome.Response
}

// DeliverDetailed performs one logical delivery and returns the full outcome
func (e *Engine) DeliverDetailed(ctx context.Context, event string, data, metadata map[string]any) Outcome {
	if e.endpoint == "" {
		// Configuration no-op, not an error: platforms without a webhook
		// endpoint simply skip delivery
		e.log.Debug().Str("event", event).Msg("no webhook endpoint configured, skipping delivery")
		return Outcome{Classification: Unconfigured}
	}

	decision := e.breaker.Allow()
	if !decision.Allowed {
		e.log.Warn().
			Str("event", event).
			Str("reason", decision.Reason).
			Msg("webhook delivery blocked by circuit breaker")
		e.record(func(r metrics.Recorder) { r.RecordFailure(event, e.endpoint, "circuit_open") })
		return Outcome{
			Classification: CircuitOpen,
			Response: map[string]any{
				"error":           decision.Reason,
				"circuit_breaker": "open",
			},
		}
	}

	// One identifier and timestamp per logical delivery, reused across
	// retries so the receiver can deduplicate
	timestamp := time.Now().UnixMilli()
	deliveryID := uuid.New().String()

	if data == nil {
		data = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	body, err := json.Marshal(envelope{Event: event, Data: data, Metadata: metadata})
	if err != nil {
		// Unserializable payloads are a caller bug, not a downstream fault
		e.log.Error().Err(err).Str("event", event).Msg("marshaling webhook payload")
		e.breaker.Release()
		return Outcome{Classification: Terminal}
	}

	sig := signature.Sign(e.secret, string(body), timestamp)

	start := time.Now()
	var last attemptResult

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if attempt > 1 {
			e.record(func(r metrics.Recorder) { r.RecordRetry(event, attempt) })

			// Suspend on a timer instead of blocking a worker; a cancelled
			// context aborts the wait immediately
			timer := time.NewTimer(e.backoffBase << uint(attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				e.breaker.Release()
				e.log.Debug().Str("event", event).Msg("webhook delivery cancelled during backoff")
				return Outcome{Classification: Cancelled, Attempts: attempt - 1, Elapsed: time.Since(start)}
			case <-timer.C:
			}
		}

		last = e.attempt(ctx, body, event, sig, timestamp, deliveryID)

		switch last.classification {
		case Succeeded:
			e.breaker.RecordSuccess()
			elapsed := time.Since(start)
			e.record(func(r metrics.Recorder) { r.RecordSuccess(event, e.endpoint, elapsed) })
			e.log.Info().
				Str("event", event).
				Str("delivery_id", deliveryID).
				Int("status", last.statusCode).
				Int("attempts", attempt).
				Msg("webhook delivered")
			return Outcome{
				Success:        true,
				Classification: Succeeded,
				StatusCode:     last.statusCode,
				Response:       last.response,
				Attempts:       attempt,
				Elapsed:        elapsed,
			}

		case Terminal:
			// Client errors are not retried; each one is a genuine,
			// distinct failure signal for the breaker
			e.breaker.RecordFailure()
			e.record(func(r metrics.Recorder) { r.RecordFailure(event, e.endpoint, last.code) })
			e.log.Warn().
				Str("event", event).
				Str("delivery_id", deliveryID).
				Int("status", last.statusCode).
				Msg("webhook rejected by receiver, not retrying")
			return Outcome{
				Classification: Terminal,
				StatusCode:     last.statusCode,
				Attempts:       attempt,
				Elapsed:        time.Since(start),
			}

		case Cancelled:
			e.breaker.Release()
			e.log.Debug().Str("event", event).Msg("webhook delivery cancelled")
			return Outcome{Classification: Cancelled, Attempts: attempt, Elapsed: time.Since(start)}
		}

		e.log.Warn().
			Str("event", event).
			Str("delivery_id", deliveryID).
			Int("attempt", attempt).
			Int("status", last.statusCode).
			Str("code", last.code).
			Msg("webhook attempt failed")
	}

	// A burst of retryable failures counts once against the breaker, so a
	// single flaky delivery cannot inflate the failure count past real
	// outage severity
	e.breaker.RecordFailure()
	e.record(func(r metrics.Recorder) { r.RecordFailure(event, e.endpoint, last.code) })
	e.log.Error().
		Str("event", event).
		Str("delivery_id", deliveryID).
		Int("attempts", e.maxRetries).
		Msg("webhook delivery failed, retries exhausted")
	return Outcome{
		Classification: Retryable,
		StatusCode:     last.statusCode,
		Attempts:       e.maxRetries,
		Elapsed:        time.Since(start),
	}
}

// GenerateSignature signs an arbitrary payload with this engine's secret.
// Exposed for verification tooling.
func (e *Engine) GenerateSignature(payload string, timestamp int64) string {
	return signature.Sign(e.secret, payload, timestamp)
}

// VerifySignature checks a signature against this engine's secret. Used by
// inbound counterparts sharing the signing scheme, not by outbound delivery.
func (e *Engine) VerifySignature(payload, sig string, timestamp int64, maxAge time.Duration) (bool, string) {
	return signature.Verify(e.secret, payload, sig, timestamp, maxAge)
}

type attemptResult struct {
	classification Classification
	statusCode     int
	response       map[string]any
	code           string // status digits or error class, for metrics
}

// attempt issues a single HTTP POST and classifies the result
func (e *Engine) attempt(ctx context.Context, body []byte, event, sig string, timestamp int64, deliveryID string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return attemptResult{classification: Terminal, code: "bad_request"}
	}

	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(HeaderSignature, sig)
	}
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderID, deliveryID)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return attemptResult{classification: Cancelled, code: "cancelled"}
		}
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return attemptResult{classification: Retryable, code: "timeout"}
		}
		return attemptResult{classification: Retryable, code: "network"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return attemptResult{
			classification: Succeeded,
			statusCode:     resp.StatusCode,
			response:       parseResponse(resp.Body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return attemptResult{
			classification: Terminal,
			statusCode:     resp.StatusCode,
			code:           strconv.Itoa(resp.StatusCode),
		}
	default:
		return attemptResult{
			classification: Retryable,
			statusCode:     resp.StatusCode,
			code:           strconv.Itoa(resp.StatusCode),
		}
	}
}

// parseResponse decodes the receiver's body as JSON, falling back to raw
// text truncated to rawResponseLimit when it is not a JSON object
func parseResponse(r io.Reader) map[string]any {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseBytes))
	if err != nil || len(data) == 0 {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err == nil {
		return parsed
	}

	text := string(data)
	if len(text) > rawResponseLimit {
		cut := rawResponseLimit
		// back up so the cut never splits a multi-byte rune
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return map[string]any{"raw": text}
}

// record shields the delivery path from a misbehaving metrics backend
func (e *Engine) record(fn func(metrics.Recorder)) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().Interface("panic", r).Msg("metrics recorder failed")
		}
	}()
	fn(e.recorder)
}
