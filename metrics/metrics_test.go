package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/bracketlab/webhook-relay/metrics"
	"github.com/stretchr/testify/assert"
)

// captureRecorder records every observation for assertion
type captureRecorder struct {
	mu        sync.Mutex
	successes []string
	failures  []string
	retries   []int
	opened    []string
	states    map[string]string
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{states: make(map[string]string)}
}

func (c *captureRecorder) RecordSuccess(event, endpoint string, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, event)
}

func (c *captureRecorder) RecordFailure(event, endpoint, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, code)
}

func (c *captureRecorder) RecordRetry(event string, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries = append(c.retries, attempt)
}

func (c *captureRecorder) RecordCircuitOpen(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, endpoint)
}

func (c *captureRecorder) SetCircuitState(endpoint, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[endpoint] = state
}

func TestFanout(t *testing.T) {
	first := newCaptureRecorder()
	second := newCaptureRecorder()
	fanout := metrics.Fanout{first, second}

	fanout.RecordSuccess("match.completed", "https://a.example.com", 50*time.Millisecond)
	fanout.RecordFailure("match.completed", "https://a.example.com", "503")
	fanout.RecordRetry("match.completed", 2)
	fanout.RecordCircuitOpen("https://a.example.com")
	fanout.SetCircuitState("https://a.example.com", "open")

	for _, c := range []*captureRecorder{first, second} {
		assert.Equal(t, []string{"match.completed"}, c.successes)
		assert.Equal(t, []string{"503"}, c.failures)
		assert.Equal(t, []int{2}, c.retries)
		assert.Equal(t, []string{"https://a.example.com"}, c.opened)
		assert.Equal(t, "open", c.states["https://a.example.com"])
	}
}

func TestNopImplementsRecorder(t *testing.T) {
	var r metrics.Recorder = metrics.Nop{}

	// a Nop recorder accepts everything without effect
	r.RecordSuccess("x", "y", time.Second)
	r.RecordFailure("x", "y", "500")
	r.RecordRetry("x", 2)
	r.RecordCircuitOpen("y")
	r.SetCircuitState("y", "closed")
}
