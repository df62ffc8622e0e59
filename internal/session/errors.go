package session

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("session: manager closed")

// RemoteError is a failure reported by the generation service.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "generation failed: " + e.Message
}

// TransportError is a connection loss or connect timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "connection lost"
	}
	return fmt.Sprintf("connection lost: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
