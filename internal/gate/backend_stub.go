//go:build !linux

package gate

import (
	"context"
	"runtime"
)

// FanotifyBackend and FanotifyObserver are unavailable outside Linux;
// fanotify is a Linux-only facility. These stubs return an error rather
// than attempting a platform-specific attachment, the same posture the
// teacher's own non-Linux build-tagged stubs take.
type FanotifyBackend struct{}

// NewFanotifyBackend always fails on non-Linux hosts.
func NewFanotifyBackend() (*FanotifyBackend, error) {
	return nil, &unsupportedError{platform: runtime.GOOS}
}

// Run never runs; construction already failed.
func (b *FanotifyBackend) Run(ctx context.Context, e *Engine) error {
	return &unsupportedError{platform: runtime.GOOS}
}

// Close is a no-op.
func (b *FanotifyBackend) Close() error { return nil }

// FanotifyObserver is unavailable outside Linux; see FanotifyBackend.
type FanotifyObserver struct{}

// NewFanotifyObserver always fails on non-Linux hosts.
func NewFanotifyObserver() (*FanotifyObserver, error) {
	return nil, &unsupportedError{platform: runtime.GOOS}
}

// Run never runs; construction already failed.
func (b *FanotifyObserver) Run(ctx context.Context, e *Engine) error {
	return &unsupportedError{platform: runtime.GOOS}
}

// Close is a no-op.
func (b *FanotifyObserver) Close() error { return nil }
