package brain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable covers dial failures and timeouts. Timeouts
	// are deliberately not distinguished from unreachable backends.
	ErrNetworkUnavailable = errors.New("reply backend unreachable")

	// ErrMalformedResponse covers undecodable or incomplete payloads.
	ErrMalformedResponse = errors.New("malformed reply response")
)

// BackendError is an explicit error reported by the reply backend.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("reply backend error (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("reply backend error: %s", e.Detail)
}
