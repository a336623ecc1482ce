package breaker

import "fmt"

/* State represents the current position of the breaker state machine
 * Follows the lifecycle: Closed -> Open -> HalfOpen -> Closed/Open
 */
type State int

const (
	Closed State = iota + 1
	Open
	HalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Validate checks if the state is valid
func (s State) Validate() error {
	if s < Closed || s > HalfOpen {
		return fmt.Errorf("invalid state: %d", s)
	}
	return nil
}
