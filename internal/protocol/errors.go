package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is matched by every ParseError via errors.Is.
var ErrMalformedMessage = errors.New("malformed SSDP message")

// ParseError describes why a datagram could not be decoded.
type ParseError struct {
	Reason string // What was wrong
	Line   string // Offending line, if any
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("%s: %s %q", ErrMalformedMessage, e.Reason, e.Line)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedMessage, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedMessage) hold for any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(reason, line string) error {
	return &ParseError{Reason: reason, Line: line}
}
