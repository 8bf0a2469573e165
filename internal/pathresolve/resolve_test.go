package pathresolve

import (
	"strings"
	"testing"
)

// buildChain constructs a dentry chain for the given path components
// under a root dentry, returning the leaf dentry. root.Parent == root.
func buildChain(root *Dentry, components ...string) *Dentry {
	cur := root
	for _, c := range components {
		cur = &Dentry{Name: c, Parent: cur}
	}
	return cur
}

func newRootMount() (*Dentry, *Mount) {
	root := &Dentry{Name: ""}
	root.Parent = root
	mnt := &Mount{}
	mnt.Root = root
	return root, mnt
}

func TestWalkSimplePath(t *testing.T) {
	rootDentry, rootMount := newRootMount()
	leaf := buildChain(rootDentry, "usr", "bin", "true")

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: leaf, Mount: rootMount}, PathHandle{Dentry: rootDentry, Mount: rootMount}, Unrolled128)

	if !res.Resolve {
		t.Fatalf("expected resolved path")
	}
	if res.Offset < 0 || res.Offset >= 2*PathMax {
		t.Fatalf("offset %d out of bounds", res.Offset)
	}
	got := string(scratch[res.Offset : res.Offset+res.Len])
	if got != "/usr/bin/true" {
		t.Fatalf("got %q, want /usr/bin/true", got)
	}
	// third segment must stay all zero
	for _, b := range scratch[2*PathMax:] {
		if b != 0 {
			t.Fatalf("third segment not zero")
		}
	}
}

func TestWalkDeletedSuffix(t *testing.T) {
	rootDentry, rootMount := newRootMount()
	leaf := buildChain(rootDentry, "usr", "bin", "ghost")
	leaf.Unlinked = true

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: leaf, Mount: rootMount}, PathHandle{Dentry: rootDentry, Mount: rootMount}, Unrolled128)

	if !res.Resolve {
		t.Fatalf("expected resolved path")
	}
	got := string(scratch[res.Offset : res.Offset+res.Len])
	if !strings.HasSuffix(got, DeletedSuffix) {
		t.Fatalf("got %q, want suffix %q", got, DeletedSuffix)
	}
	if got != "/usr/bin/ghost (deleted)" {
		t.Fatalf("got %q", got)
	}
}

func TestWalkMountCrossing(t *testing.T) {
	// Global root mount with /mnt mountpoint, and a second mount whose
	// root is attached there.
	globalRootDentry, globalMount := newRootMount()
	mountPoint := buildChain(globalRootDentry, "mnt")

	subRoot := &Dentry{Name: "subroot"}
	subRoot.Parent = subRoot
	subMount := &Mount{Root: subRoot, Parent: globalMount, MountPoint: mountPoint}

	leaf := buildChain(subRoot, "data", "file.txt")

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: leaf, Mount: subMount}, PathHandle{Dentry: globalRootDentry, Mount: globalMount}, Unrolled128)

	if !res.Resolve {
		t.Fatalf("expected resolved path")
	}
	got := string(scratch[res.Offset : res.Offset+res.Len])
	if got != "/mnt/data/file.txt" {
		t.Fatalf("got %q, want /mnt/data/file.txt", got)
	}
}

func TestWalkIterationCapExceeded(t *testing.T) {
	rootDentry, rootMount := newRootMount()
	components := make([]string, 200)
	for i := range components {
		components[i] = "d"
	}
	leaf := buildChain(rootDentry, components...)

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: leaf, Mount: rootMount}, PathHandle{Dentry: rootDentry, Mount: rootMount}, Unrolled128)

	if res.Resolve {
		t.Fatalf("expected unresolved due to iteration cap")
	}
}

func TestWalkIterationCapLargerStrategySucceeds(t *testing.T) {
	rootDentry, rootMount := newRootMount()
	components := make([]string, 200)
	for i := range components {
		components[i] = "d"
	}
	leaf := buildChain(rootDentry, components...)

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: leaf, Mount: rootMount}, PathHandle{Dentry: rootDentry, Mount: rootMount}, ExplicitCounter2048)

	if !res.Resolve {
		t.Fatalf("expected resolved with larger iteration cap")
	}
}

func TestWalkPathlessFallsBackToLeafName(t *testing.T) {
	orphan := &Dentry{Name: "memfd:anon"}
	orphan.Parent = nil // disconnected, unreachable from any root

	var scratch Scratch
	res := Walk(&scratch, PathHandle{Dentry: orphan, Mount: nil}, PathHandle{}, Unrolled128)

	if res.Resolve {
		t.Fatalf("pathless object should not report resolved")
	}
	if res.Offset < 0 {
		t.Fatalf("expected best-effort leaf name to be written")
	}
	got := string(scratch[res.Offset : res.Offset+res.Len])
	if got != "memfd:anon" {
		t.Fatalf("got %q", got)
	}
}

func TestMaskPathOffsetStaysInBounds(t *testing.T) {
	for _, off := range []int{-10, 0, PathMax, 2 * PathMax, 3 * PathMax, 1 << 20} {
		m := maskPathOffset(off)
		if m < PathMax || m > resolveSegmentLen {
			t.Fatalf("maskPathOffset(%d) = %d out of bounds", off, m)
		}
	}
}

func TestMaskPathOffsetIdentityOnSegmentBounds(t *testing.T) {
	// The walk's cursor legitimately starts at 2*PathMax (nothing
	// written yet) and decreases toward PathMax; both ends of that
	// range must pass through the mask unchanged.
	if m := maskPathOffset(2 * PathMax); m != 2*PathMax {
		t.Fatalf("maskPathOffset(2*PathMax) = %d, want %d", m, 2*PathMax)
	}
	if m := maskPathOffset(PathMax); m != PathMax {
		t.Fatalf("maskPathOffset(PathMax) = %d, want %d", m, PathMax)
	}
}

func TestMaskComponentLenBounded(t *testing.T) {
	for _, n := range []int{-5, 0, 100, 255, 256, 1000} {
		m := maskComponentLen(n)
		if m < 0 || m >= ComponentMax {
			t.Fatalf("maskComponentLen(%d) = %d out of bounds", n, m)
		}
	}
}
