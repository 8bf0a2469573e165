package pathresolve

// Result carries a completed resolution: Offset is the first byte of
// the resolved path within Scratch, and the path runs
// [Offset, 2*PathMax) with no trailing NUL, followed by the all-zero
// third segment.
type Result struct {
	Offset  int
	Len     int
	Resolve bool // true if the walk reached the root anchor; false for best-effort/unresolved
}

// Walk reconstructs the absolute path of leaf within the given root
// anchor, writing into scratch right-to-left. strategy bounds the
// number of steps taken; exceeding it without reaching root yields an
// unresolved result (Offset -1), except when the walk wrote nothing at
// all, in which case the leaf's own name is returned as a best-effort,
// not-resolved path.
//
// Walk never blocks, never allocates beyond the single Scratch the
// caller supplies, and never calls back into caller code mid-walk.
func Walk(scratch *Scratch, leaf PathHandle, root PathHandle, strategy Strategy) Result {
	scratch.reset()
	cursor := resolveSegmentLen // absolute offset within scratch; starts at 2*PathMax
	initialCursor := cursor
	wroteAny := false

	if leaf.Dentry != nil && leaf.Dentry.Unlinked {
		cursor = scratch.writeAt(cursor, []byte(DeletedSuffix))
		wroteAny = true
	}

	dentry := leaf.Dentry
	mount := leaf.Mount

	maxIter := strategy.MaxIterations()
	for i := 0; i < maxIter; i++ {
		if dentry == nil || mount == nil {
			break
		}
		cur := PathHandle{Dentry: dentry, Mount: mount}
		if cur.Equal(root) {
			return finish(cursor, initialCursor, wroteAny, true)
		}

		if dentry == mount.Root || dentry.IsSelfParent() {
			if mount.IsGlobalRoot() {
				return finish(cursor, initialCursor, wroteAny, true)
			}
			dentry = mount.MountPoint
			mount = mount.Parent
			continue
		}

		name := dentry.Name
		nameLen := maskComponentLen(len(name))
		if nameLen < len(name) {
			name = name[len(name)-nameLen:]
		}
		cursor = scratch.writeAt(cursor, []byte(name))
		cursor = scratch.writeAt(cursor, []byte{'/'})
		wroteAny = true
		dentry = dentry.Parent
	}

	// Iteration cap exceeded, or the graph ran out (nil dentry/mount)
	// before reaching root: unresolved, unless a pathless object left
	// the cursor untouched, in which case fall back to the leaf name.
	if !wroteAny && leaf.Dentry != nil {
		cursor = scratch.writeAt(cursor, []byte(leaf.Dentry.Name))
		return finish(cursor, initialCursor, true, false)
	}
	return Result{Offset: -1, Resolve: false}
}

func finish(cursor, initialCursor int, wroteAny, resolved bool) Result {
	if !wroteAny {
		// Pathless object with nothing written at all: no path to report.
		return Result{Offset: -1, Resolve: false}
	}
	return Result{
		Offset:  cursor,
		Len:     initialCursor - cursor,
		Resolve: resolved,
	}
}
