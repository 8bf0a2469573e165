package cgrouptrack

import "testing"

// TestTrackerInheritanceS5 implements spec scenario S5: userspace seeds
// tracker_map[R]=R; child C is created under R and inherits R; release
// of C removes it; a second child C' born after C's release still
// inherits from R.
func TestTrackerInheritanceS5(t *testing.T) {
	const R, C, CPrime CgroupID = 100, 200, 300

	tm := NewTrackerMap()
	if !tm.Seed(R, R) {
		t.Fatalf("seed failed")
	}
	if !tm.HandleMkdir(C, R) {
		t.Fatalf("mkdir inherit failed")
	}
	if got := tm.Tracker(C); got != R {
		t.Fatalf("tracker(C) = %d, want %d", got, R)
	}

	tm.HandleRelease(C)
	if got := tm.Tracker(C); got != C {
		// C is no longer tracked; Tracker falls back to cgid itself.
		t.Fatalf("tracker(C) after release = %d, want %d (untracked fallback)", got, C)
	}

	if !tm.HandleMkdir(CPrime, R) {
		t.Fatalf("mkdir for C' failed")
	}
	if got := tm.Tracker(CPrime); got != R {
		t.Fatalf("tracker(C') = %d, want %d", got, R)
	}
}

func TestTrackerMkdirWithUntrackedParentIsNoop(t *testing.T) {
	tm := NewTrackerMap()
	ok := tm.HandleMkdir(2, 1) // parent 1 never seeded
	if ok {
		t.Fatalf("expected no-op for untracked parent")
	}
	if got := tm.Tracker(2); got != 2 {
		t.Fatalf("tracker(2) = %d, want fallback to 2", got)
	}
}

func TestTrackerReleaseUntrackedIsNoop(t *testing.T) {
	tm := NewTrackerMap()
	tm.HandleRelease(999) // must not panic
}

func TestTrackerZeroCgidIsAlwaysMiss(t *testing.T) {
	tm := NewTrackerMap()
	tm.Seed(0, 42)
	if got := tm.Tracker(0); got != 0 {
		t.Fatalf("tracker(0) = %d, want 0", got)
	}
}

func TestTrackerCapacityBound(t *testing.T) {
	tm := NewTrackerMap()
	for i := 0; i < MaxEntries; i++ {
		if !tm.Seed(CgroupID(i+1), CgroupID(i+1)) {
			t.Fatalf("unexpected capacity failure at %d", i)
		}
	}
	if tm.Seed(CgroupID(MaxEntries+1), CgroupID(MaxEntries+1)) {
		t.Fatalf("expected capacity failure beyond MaxEntries")
	}
}

func TestPolicyBindingAndMode(t *testing.T) {
	pb := NewPolicyBindingMap()
	pm := NewPolicyModeMap()

	if !pb.Bind(7, 42) {
		t.Fatalf("bind failed")
	}
	p, ok := pb.Lookup(7)
	if !ok || p != 42 {
		t.Fatalf("lookup = (%d, %v), want (42, true)", p, ok)
	}

	if _, ok := pm.Lookup(42); ok {
		t.Fatalf("expected no mode configured yet")
	}
	pm.Set(42, ModeEnforce)
	mode, ok := pm.Lookup(42)
	if !ok || mode != ModeEnforce {
		t.Fatalf("mode = (%v, %v), want (enforce, true)", mode, ok)
	}
}

func TestCurrentCgroupIDDispatch(t *testing.T) {
	task := TaskCgroup{
		Default:  111,
		BySubsys: map[ControllerIndex]CgroupID{ControllerCPUSet: 222},
	}
	if got := CurrentCgroupID(HierarchyV2, task, ControllerCPUSet); got != 111 {
		t.Fatalf("v2 got %d, want 111", got)
	}
	if got := CurrentCgroupID(HierarchyV1, task, ControllerCPUSet); got != 222 {
		t.Fatalf("v1 got %d, want 222", got)
	}
	if got := CurrentCgroupID(HierarchyV1, task, ControllerIndex(999)); got != 0 {
		t.Fatalf("v1 out-of-range got %d, want 0", got)
	}
}
