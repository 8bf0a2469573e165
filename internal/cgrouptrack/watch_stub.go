//go:build !linux

package cgrouptrack

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Watcher is unavailable outside Linux: cgroups are a Linux-only
// kernel facility, so there is no cgroupfs tree to reconcile against.
type Watcher struct{}

// NewWatcher always returns a Watcher whose Run reports the host as
// unsupported, mirroring gate's non-Linux backend stubs.
func NewWatcher(root string, tracker *TrackerMap, interval time.Duration) *Watcher {
	return &Watcher{}
}

// Run never succeeds on non-Linux hosts.
func (w *Watcher) Run(ctx context.Context) error {
	return fmt.Errorf("cgrouptrack: cgroup watching unsupported on %s", runtime.GOOS)
}
