//go:build linux

package cgrouptrack

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Watcher reconciles TrackerMap against the live cgroupfs tree by
// periodic directory scanning. There is no portable, dependency-available
// netlink or tracepoint source for cgroup-mkdir/-release notifications
// from userspace Go, so this stands in for the kernel's cgroup_mkdir and
// cgroup_release tracepoints (spec §4.2) with the nearest equivalent a
// host process can observe on its own: a new subdirectory is a mkdir, a
// vanished one is a release.
type Watcher struct {
	root     string
	tracker  *TrackerMap
	interval time.Duration
	seen     map[string]CgroupID
}

// NewWatcher watches the subtree rooted at root (typically the
// container runtime's slice directory under /sys/fs/cgroup).
func NewWatcher(root string, tracker *TrackerMap, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{root: root, tracker: tracker, interval: interval, seen: make(map[string]CgroupID)}
}

// Run scans until ctx is cancelled, calling HandleMkdir for newly
// discovered directories and HandleRelease for ones that disappeared.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.scanOnce()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) scanOnce() {
	current := make(map[string]CgroupID)
	filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			return nil
		}
		current[path] = CgroupID(st.Ino)
		return nil
	})

	for path, cgid := range current {
		if _, ok := w.seen[path]; ok {
			continue
		}
		parent := filepath.Dir(path)
		parentCgid, ok := current[parent]
		if ok {
			w.tracker.HandleMkdir(cgid, parentCgid)
		}
	}
	for path, cgid := range w.seen {
		if _, ok := current[path]; !ok {
			w.tracker.HandleRelease(cgid)
		}
	}
	w.seen = current
}
