//go:build integration

package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/bracketlab/webhook-relay/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecent(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	history := metrics.NewHistory(client, 3, time.Hour, zerolog.Nop())
	endpoint := "https://scores.example.com/hooks"

	history.RecordSuccess("match.completed", endpoint, 120*time.Millisecond)
	history.RecordFailure("match.completed", endpoint, "503")
	history.RecordFailure("ranking.updated", endpoint, "timeout")

	attempts, err := history.Recent(ctx, endpoint, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	// newest first
	assert.Equal(t, "ranking.updated", attempts[0].Event)
	assert.Equal(t, "failed", attempts[0].Outcome)
	assert.Equal(t, "timeout", attempts[0].Code)
	assert.Equal(t, "delivered", attempts[2].Outcome)
	assert.Equal(t, int64(120), attempts[2].LatencyMs)
}

func TestHistoryCapped(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	history := metrics.NewHistory(client, 2, time.Hour, zerolog.Nop())
	endpoint := "https://scores.example.com/hooks"

	history.RecordFailure("a", endpoint, "500")
	history.RecordFailure("b", endpoint, "500")
	history.RecordFailure("c", endpoint, "500")

	attempts, err := history.Recent(ctx, endpoint, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "c", attempts[0].Event)
	assert.Equal(t, "b", attempts[1].Event)
}

func TestHistoryThroughput(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	history := metrics.NewHistory(client, 100, time.Hour, zerolog.Nop())

	history.RecordSuccess("match.completed", "https://a.example.com", time.Millisecond)
	history.RecordSuccess("match.completed", "https://b.example.com", time.Millisecond)

	throughput, err := history.GetThroughput(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), throughput.LastMinute)
	assert.Equal(t, int64(2), throughput.LastFiveMinutes)
	assert.Equal(t, int64(2), throughput.LastFifteenMinutes)
}

func TestHistoryRetryCounts(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	history := metrics.NewHistory(client, 100, time.Hour, zerolog.Nop())

	history.RecordRetry("match.completed", 2)
	history.RecordRetry("match.completed", 3)
	history.RecordRetry("ranking.updated", 2)

	counts, err := history.GetRetryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["match.completed"])
	assert.Equal(t, int64(1), counts["ranking.updated"])
}

func TestHistoryCircuitState(t *testing.T) {
	ctx := context.Background()
	client, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	history := metrics.NewHistory(client, 100, time.Hour, zerolog.Nop())
	history.SetCircuitState("https://a.example.com", "open")

	state, err := client.Get(ctx, "circuit:state:https://a.example.com").Result()
	require.NoError(t, err)
	assert.Equal(t, "open", state)
}
