package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

/* History is a redis-backed log of recent delivery outcomes, kept per
 * endpoint in a capped list with a TTL. It implements Recorder so it can be
 * fanned out next to the OTel recorder, and feeds the inspection API with
 * data Prometheus counters cannot answer (what exactly happened to the last
 * N deliveries for this endpoint).
 *
 * Everything here is best-effort observability. Writes run with a short
 * timeout and failures are logged, never surfaced to the delivery path.
 */

const (
	attemptListPrefix  = "deliveries:recent"    // deliveries:recent:{endpoint}
	deliveredSetKey    = "deliveries:delivered" // sorted set scored by unix seconds
	retryCountsKey     = "deliveries:retries"   // hash: event -> count
	circuitStatePrefix = "circuit:state"        // circuit:state:{endpoint}

	writeTimeout = 2 * time.Second
)

// Attempt is one recorded delivery outcome
type Attempt struct {
	Event      string    `json:"event"`
	Endpoint   string    `json:"endpoint"`
	Outcome    string    `json:"outcome"` // "delivered" or "failed"
	Code       string    `json:"code,omitempty"`
	LatencyMs  int64     `json:"latency_ms,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Throughput counts deliveries over trailing time windows
type Throughput struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

type History struct {
	client *redis.Client
	keep   int64
	ttl    time.Duration
	log    zerolog.Logger
}

// NewHistory creates a redis-backed history keeping at most keep attempts
// per endpoint, expiring ttl after the last write
func NewHistory(client *redis.Client, keep int, ttl time.Duration, log zerolog.Logger) *History {
	if keep <= 0 {
		keep = 100
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &History{
		client: client,
		keep:   int64(keep),
		ttl:    ttl,
		log:    log,
	}
}

// RecordSuccess appends a delivered attempt and marks it for throughput windows
func (h *History) RecordSuccess(event, endpoint string, latency time.Duration) {
	now := time.Now()
	h.push(Attempt{
		Event:      event,
		Endpoint:   endpoint,
		Outcome:    "delivered",
		LatencyMs:  latency.Milliseconds(),
		RecordedAt: now,
	})

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	member := fmt.Sprintf("%s:%d", endpoint, now.UnixNano())
	if err := h.client.ZAdd(ctx, deliveredSetKey, redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	}).Err(); err != nil {
		h.log.Warn().Err(err).Msg("recording delivery throughput")
	}
}

// RecordFailure appends a failed attempt
func (h *History) RecordFailure(event, endpoint, code string) {
	h.push(Attempt{
		Event:      event,
		Endpoint:   endpoint,
		Outcome:    "failed",
		Code:       code,
		RecordedAt: time.Now(),
	})
}

// RecordRetry counts retry attempts per event type
func (h *History) RecordRetry(event string, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := h.client.HIncrBy(ctx, retryCountsKey, event, 1).Err(); err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("recording retry count")
	}
}

// RecordCircuitOpen is satisfied by SetCircuitState, which the registry
// reports on every transition
func (h *History) RecordCircuitOpen(endpoint string) {}

// SetCircuitState stores the last reported breaker state per endpoint
func (h *History) SetCircuitState(endpoint, state string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := fmt.Sprintf("%s:%s", circuitStatePrefix, endpoint)
	if err := h.client.Set(ctx, key, state, h.ttl).Err(); err != nil {
		h.log.Warn().Err(err).Str("endpoint", endpoint).Msg("recording circuit state")
	}
}

// push appends an attempt to the endpoint's capped list
func (h *History) push(a Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	data, err := json.Marshal(a)
	if err != nil {
		h.log.Warn().Err(err).Msg("marshaling delivery attempt")
		return
	}

	key := fmt.Sprintf("%s:%s", attemptListPrefix, a.Endpoint)

	pipe := h.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, h.keep-1)
	pipe.Expire(ctx, key, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Str("endpoint", a.Endpoint).Msg("recording delivery attempt")
	}
}

// Recent returns up to limit most recent attempts for an endpoint, newest first
func (h *History) Recent(ctx context.Context, endpoint string, limit int) ([]Attempt, error) {
	if limit <= 0 || int64(limit) > h.keep {
		limit = int(h.keep)
	}

	key := fmt.Sprintf("%s:%s", attemptListPrefix, endpoint)
	entries, err := h.client.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading delivery history: %w", err)
	}

	attempts := make([]Attempt, 0, len(entries))
	for _, entry := range entries {
		var a Attempt
		if err := json.Unmarshal([]byte(entry), &a); err != nil {
			// Skip entries written by incompatible versions
			continue
		}
		attempts = append(attempts, a)
	}

	return attempts, nil
}

// GetThroughput counts deliveries over the trailing 1m/5m/15m windows and
// trims entries that fell out of the longest window
func (h *History) GetThroughput(ctx context.Context) (Throughput, error) {
	now := time.Now()
	cutoff := now.Add(-15 * time.Minute).Unix()

	if err := h.client.ZRemRangeByScore(ctx, deliveredSetKey, "-inf", strconv.FormatInt(cutoff-1, 10)).Err(); err != nil {
		return Throughput{}, fmt.Errorf("trimming throughput set: %w", err)
	}

	count := func(since time.Time) (int64, error) {
		return h.client.ZCount(ctx, deliveredSetKey, strconv.FormatInt(since.Unix(), 10), "+inf").Result()
	}

	lastMinute, err := count(now.Add(-time.Minute))
	if err != nil {
		return Throughput{}, fmt.Errorf("counting last minute: %w", err)
	}
	lastFive, err := count(now.Add(-5 * time.Minute))
	if err != nil {
		return Throughput{}, fmt.Errorf("counting last five minutes: %w", err)
	}
	lastFifteen, err := count(now.Add(-15 * time.Minute))
	if err != nil {
		return Throughput{}, fmt.Errorf("counting last fifteen minutes: %w", err)
	}

	return Throughput{
		LastMinute:         lastMinute,
		LastFiveMinutes:    lastFive,
		LastFifteenMinutes: lastFifteen,
	}, nil
}

// GetRetryCounts returns accumulated retry counts per event type
func (h *History) GetRetryCounts(ctx context.Context) (map[string]int64, error) {
	raw, err := h.client.HGetAll(ctx, retryCountsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading retry counts: %w", err)
	}

	counts := make(map[string]int64, len(raw))
	for event, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[event] = n
	}

	return counts, nil
}
