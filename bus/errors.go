package bus

import "errors"

var (
	// ErrBusStopped is returned by operations that require a running bus.
	ErrBusStopped = errors.New("bus is stopped")

	// ErrHandlerTimeout marks a subscriber invocation that exceeded the
	// configured per-handler timeout.
	ErrHandlerTimeout = errors.New("handler timeout")
)
