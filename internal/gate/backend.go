package gate

import "context"

// Backend is a real kernel attachment point driving an Engine. Run
// blocks until ctx is cancelled or an unrecoverable error occurs.
type Backend interface {
	// Run attaches to the host and feeds exec notifications into e
	// until ctx is cancelled.
	Run(ctx context.Context, e *Engine) error
	// Close releases any OS resources (file descriptors, watches).
	Close() error
}

// unsupportedError is returned by backends on platforms without a
// real attachment mechanism.
type unsupportedError struct{ platform string }

func (e *unsupportedError) Error() string {
	return "gate: no enforcement backend available on " + e.platform
}
