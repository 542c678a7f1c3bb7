package client

import (
	"errors"
	"fmt"
)

// Error taxonomy for a call:
//
//   - NetworkError: transport-level failure (connect, read/write, malformed
//     frame or envelope). The only retriable class.
//   - ErrVerbNotFound: the server has no handler for the netname/verb. Terminal.
//   - ServerError: the handler ran and reported a failure. Terminal.
//   - DecodeError: the server answered Ok but the body does not decode into
//     the caller's type. Terminal.
//   - ErrTimeout: the overall call deadline elapsed. Terminal.
var (
	ErrVerbNotFound = errors.New("verb not found")
	ErrTimeout      = errors.New("request timed out")
)

// NetworkError wraps a transient transport failure. A call that fails with a
// NetworkError was safe to retry; envelope corruption is included because it
// is indistinguishable from a transport problem.
type NetworkError struct {
	Op  string // "connect", "write", "read", "decode"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is an application-level failure reported by the remote handler.
// The message is surfaced verbatim from the response body.
type ServerError struct {
	Kind    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%s): %s", e.Kind, e.Message)
}

// DecodeError means the server responded successfully but with a body the
// caller's response type cannot be decoded from. Never retried: the server
// did its part, retrying would produce the same bytes.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode response body: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transport-level failure that a retry
// may resolve.
func IsTransient(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
