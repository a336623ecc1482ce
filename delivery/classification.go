package delivery

import "fmt"

/* Classification tags the outcome of a delivery instead of driving control
 * flow through error types. Retryable outcomes are consumed by the backoff
 * loop; everything else ends the delivery.
 */
type Classification int

const (
	Succeeded Classification = iota + 1
	Retryable
	Terminal
	Cancelled
	CircuitOpen
	Unconfigured
)

// String returns the string representation of the classification
func (c Classification) String() string {
	switch c {
	case Succeeded:
		return "success"
	case Retryable:
		return "retryable"
	case Terminal:
		return "terminal"
	case Cancelled:
		return "cancelled"
	case CircuitOpen:
		return "circuit_open"
	case Unconfigured:
		return "unconfigured"
	default:
		return "unknown"
	}
}

// Validate checks if the classification is valid
func (c Classification) Validate() error {
	if c < Succeeded || c > Unconfigured {
		return fmt.Errorf("invalid classification: %d", c)
	}
	return nil
}
