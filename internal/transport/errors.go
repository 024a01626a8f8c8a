package transport

import "errors"

// Sentinel errors for transport operations.
var (
	// ErrNotConnected indicates no bridge session is currently open.
	// Callers decide whether to retry; the manager never buffers sends.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrTerminated indicates the manager has been shut down and will not
	// accept further operations.
	ErrTerminated = errors.New("transport: session terminated")

	// ErrCredentials indicates local credential storage could not be read
	// or written. This is a fatal local error and is not retried.
	ErrCredentials = errors.New("transport: credential storage failure")
)
