package breaker

import (
	"fmt"
	"sync"
	"time"
)

/* Default breaker settings, matching the platform-wide configuration
 * defaults. Endpoint configuration may override any of them.
 */
const (
	DefaultFailureWindow    = 120 * time.Second
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// Settings holds the tunables for a single breaker
type Settings struct {
	// FailureWindow is how long recorded failures count towards the
	// threshold; older failures are discarded
	FailureWindow time.Duration

	// FailureThreshold is the failure count that opens the breaker
	FailureThreshold int

	// Cooldown is how long an open breaker blocks requests before
	// allowing a half-open probe
	Cooldown time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureWindow <= 0 {
		s.FailureWindow = DefaultFailureWindow
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	return s
}

// Decision is the result of asking the breaker whether a request may proceed
type Decision struct {
	Allowed bool

	// Reason explains a denial; empty when allowed
	Reason string

	// RetryIn is the remaining cooldown on a denied decision
	RetryIn time.Duration
}

// Snapshot is a point-in-time view of the breaker, safe to hand to
// inspection APIs without holding the lock
type Snapshot struct {
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	WindowStart  time.Time `json:"window_start,omitzero"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
}

/* Breaker is a per-endpoint failure-tracking state machine.
 *
 * Closed: requests flow; failures accumulate within a rolling window and
 * each success decays the count by one, so sparse failures never open the
 * breaker but bursts do. Open: requests are denied until the cooldown
 * elapses. HalfOpen: exactly one probe is admitted; its outcome decides
 * whether the breaker closes or reopens.
 *
 * Allow and the Record methods are atomic with respect to each other, so
 * concurrent deliveries to the same endpoint always observe a consistent
 * machine.
 */
type Breaker struct {
	mu       sync.Mutex
	settings Settings

	state        State
	failureCount int
	windowStart  time.Time
	openedAt     time.Time
	probeActive  bool

	// now is the clock, swappable in tests
	now func() time.Time

	// onStateChange, when set, observes every transition. It is invoked
	// outside the lock so observers may call back into the breaker.
	onStateChange func(from, to State)
}

// New creates a breaker in the Closed state
func New(settings Settings) *Breaker {
	return &Breaker{
		settings: settings.withDefaults(),
		state:    Closed,
		now:      time.Now,
	}
}

// OnStateChange registers a transition observer. Must be called before the
// breaker is shared between goroutines.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.onStateChange = fn
}

// Allow reports whether a request may proceed. An open breaker whose
// cooldown has elapsed moves to HalfOpen and admits the caller as the
// single probe.
func (b *Breaker) Allow() Decision {
	b.mu.Lock()
	var notify func()

	var d Decision
	switch b.state {
	case Open:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.settings.Cooldown {
			d = Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("circuit open, retry in %s", (b.settings.Cooldown - elapsed).Round(time.Second)),
				RetryIn: b.settings.Cooldown - elapsed,
			}
			break
		}
		notify = b.transition(HalfOpen)
		b.probeActive = true
		d = Decision{Allowed: true}
	case HalfOpen:
		if b.probeActive {
			d = Decision{Allowed: false, Reason: "circuit half-open, probe in flight"}
			break
		}
		b.probeActive = true
		d = Decision{Allowed: true}
	default:
		d = Decision{Allowed: true}
	}

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
	return d
}

// RecordSuccess feeds a successful delivery outcome into the machine.
// A half-open probe success closes the breaker and clears the failure
// count; in the closed state the count decays by one, floored at zero.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var notify func()

	switch b.state {
	case HalfOpen:
		notify = b.transition(Closed)
		b.reset()
	case Closed:
		if b.failureCount > 0 {
			b.failureCount--
		}
		if b.failureCount == 0 {
			b.windowStart = time.Time{}
		}
	}
	// A late success landing while Open changes nothing; the cooldown
	// already governs recovery.

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// RecordFailure feeds a failed delivery outcome into the machine.
// In the closed state failures older than the window are discarded before
// the new one is counted; reaching the threshold opens the breaker. A
// failed half-open probe reopens it and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var notify func()

	switch b.state {
	case Closed:
		now := b.now()
		if !b.windowStart.IsZero() && now.Sub(b.windowStart) > b.settings.FailureWindow {
			b.failureCount = 0
			b.windowStart = time.Time{}
		}
		if b.windowStart.IsZero() {
			b.windowStart = now
		}
		b.failureCount++
		if b.failureCount >= b.settings.FailureThreshold {
			notify = b.transition(Open)
			b.openedAt = now
		}
	case HalfOpen:
		notify = b.transition(Open)
		b.openedAt = b.now()
		b.probeActive = false
	}

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Release abandons an admitted request without recording an outcome.
// A cancelled half-open probe frees the slot so the next caller may
// probe instead; cancellation is not a downstream fault.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.probeActive = false
	}
}

// Snapshot returns a consistent view of the breaker
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		WindowStart:  b.windowStart,
		OpenedAt:     b.openedAt,
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the lock held; the returned func fires the
// observer and must be invoked after unlocking
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	if b.onStateChange == nil || from == to {
		return nil
	}
	fn := b.onStateChange
	return func() { fn(from, to) }
}

// reset must be called with the lock held
func (b *Breaker) reset() {
	b.failureCount = 0
	b.windowStart = time.Time{}
	b.openedAt = time.Time{}
	b.probeActive = false
}
