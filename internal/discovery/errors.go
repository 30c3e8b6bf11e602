package discovery

import (
	"errors"
	"fmt"
	"net"
)

// ErrServiceStopped is returned by operations that need a running service.
var ErrServiceStopped = errors.New("discovery service stopped")

// ErrSchedulerClosed is returned when scheduling on a shut down scheduler.
var ErrSchedulerClosed = errors.New("scheduler closed")

// NetworkError represents a socket-level failure
type NetworkError struct {
	Operation string // what was being attempted (e.g., "join group")
	Err       error  // underlying error
	Details   string // extra context (interface, address, sizes)
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("network error during %s", e.Operation)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a read or write deadline expiry.
func (e *NetworkError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsTimeout reports whether err is a deadline expiry from a Transport.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
