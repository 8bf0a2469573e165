package cgrouptrack

import "sync"

// TrackerMap is the cgroup id -> tracker cgroup id mapping (spec §3,
// "Tracker map"). It is concurrently readable by any number of
// enforcement-path goroutines while being updated by mkdir/release
// notifications, mirroring the kernel map's atomic insert/delete
// contract (spec §5): readers share a read lock, waiting only while an
// insert or delete holds the write lock, and observe either the old or
// the new mapping.
type TrackerMap struct {
	mu    sync.RWMutex
	byCid map[CgroupID]CgroupID
}

// NewTrackerMap returns an empty tracker map bounded at MaxEntries.
func NewTrackerMap() *TrackerMap {
	return &TrackerMap{byCid: make(map[CgroupID]CgroupID)}
}

// Tracker returns tracker_id(task) per spec §4.2: tracker_map[cgid] if
// present, else cgid itself.
func (t *TrackerMap) Tracker(cgid CgroupID) CgroupID {
	if cgid == 0 {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if tid, ok := t.byCid[cgid]; ok {
		return tid
	}
	return cgid
}

// Seed attaches a container root cgroup to itself or to a logical
// tracker, the userspace-origin insertion spec §3 describes. Returns
// false if the map is at capacity.
func (t *TrackerMap) Seed(cgid, tracker CgroupID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byCid[cgid]; !exists && len(t.byCid) >= MaxEntries {
		return false
	}
	t.byCid[cgid] = tracker
	return true
}

// HandleMkdir implements the cgroup-created state transition (spec
// §4.2): if the new cgroup's parent is tracked, the child inherits the
// parent's tracker value. A parent that is not tracked at the moment of
// the child's creation yields no inheritance — the tolerated, fail-open
// race spec §4.2 calls out explicitly.
func (t *TrackerMap) HandleMkdir(childCgid, parentCgid CgroupID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracker, parentTracked := t.byCid[parentCgid]
	if !parentTracked {
		return false
	}
	if _, exists := t.byCid[childCgid]; !exists && len(t.byCid) >= MaxEntries {
		return false
	}
	t.byCid[childCgid] = tracker
	return true
}

// HandleRelease implements the cgroup-released state transition: delete
// tracker_map[cgid] for any key present. A release for an untracked
// cgroup is a silent no-op.
func (t *TrackerMap) HandleRelease(cgid CgroupID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCid, cgid)
}

// Len reports the current entry count, for tests and capacity metrics.
func (t *TrackerMap) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byCid)
}
