package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistryIsolation(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 2})

	a := r.For("https://a.example.com/hooks")
	other := r.For("https://b.example.com/hooks")

	a.RecordFailure()
	a.RecordFailure()

	// failures on one endpoint must not open the breaker for another
	assert.Equal(t, Open, a.State())
	assert.Equal(t, Closed, other.State())
	assert.True(t, other.Allow().Allowed)
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewRegistry(Settings{})

	first := r.For("https://a.example.com/hooks")
	second := r.For("https://a.example.com/hooks")

	assert.Same(t, first, second)
}

func TestRegistryPerEndpointSettings(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 5})

	strict := r.ForWith("https://flaky.example.com/hooks", Settings{FailureThreshold: 1})
	strict.RecordFailure()

	assert.Equal(t, Open, strict.State())

	// settings only apply on creation
	again := r.ForWith("https://flaky.example.com/hooks", Settings{FailureThreshold: 100})
	assert.Same(t, strict, again)
}

func TestRegistryDefaultsFillUnsetSettings(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 2})

	b := r.ForWith("https://a.example.com/hooks", Settings{Cooldown: time.Minute})
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 2})

	r.For("https://a.example.com/hooks").RecordFailure()
	b := r.For("https://b.example.com/hooks")
	b.RecordFailure()
	b.RecordFailure()

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, Closed, snap["https://a.example.com/hooks"].State)
	assert.Equal(t, 1, snap["https://a.example.com/hooks"].FailureCount)
	assert.Equal(t, Open, snap["https://b.example.com/hooks"].State)
}

func TestRegistryStateChangeObserver(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, Cooldown: time.Minute})

	type change struct {
		endpoint string
		to       State
	}
	var changes []change
	r.OnStateChange(func(endpoint string, from, to State) {
		changes = append(changes, change{endpoint, to})
	})

	r.For("https://a.example.com/hooks").RecordFailure()

	assert.Equal(t, []change{{"https://a.example.com/hooks", Open}}, changes)
}
