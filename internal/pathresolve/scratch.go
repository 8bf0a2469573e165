package pathresolve

// Scratch is the tri-segment buffer the resolver writes into:
//
//	[0, PathMax)          reserved, never written by reconstruction
//	[PathMax, 2*PathMax)  progressive right-to-left reconstruction
//	[2*PathMax, 3*PathMax) all-zero padding for fixed-width bucket lookups
//
// It is a fixed-size array value, not a slice-of-slices, so the segment
// layout is a literal memory layout rather than a convention callers
// must remember.
type Scratch [3 * PathMax]byte

// resolveSegmentLen is the end offset of the middle, writable segment
// (2*PathMax): the resolved path occupies some suffix of
// [PathMax, 2*PathMax).
const resolveSegmentLen = 2 * PathMax

// maskPathOffset reduces an absolute scratch cursor into the inclusive
// bounds of the writable reconstruction segment, [PathMax, 2*PathMax].
// The walk's cursor starts at 2*PathMax (nothing written yet) and only
// ever decreases, so the valid range includes its own upper bound --
// unlike a typical wrapping counter. Masking the raw cursor directly
// (mod 2*PathMax, a power of two) would send that upper bound to zero,
// corrupting the very first write. Instead the reduction is applied to
// the cursor's position within the segment (off - PathMax, which
// legitimately ranges over [0, PathMax]): a span small enough that the
// mask is a no-op for every well-formed cursor, while any out-of-range
// input is still provably folded back into [PathMax, 2*PathMax].
func maskPathOffset(off int) int {
	rel := (off - PathMax) & (resolveSegmentLen - 1)
	if rel > PathMax {
		rel = PathMax
	}
	return PathMax + rel
}

// maskComponentLen reduces a component length to [0, ComponentMax),
// proving the per-component read never exceeds the 256-byte cap.
func maskComponentLen(n int) int {
	if n > ComponentMax-1 {
		n = ComponentMax - 1
	}
	if n < 0 {
		n = 0
	}
	return n & (ComponentMax - 1)
}

// reset zeroes the scratch buffer before a new walk begins.
func (s *Scratch) reset() {
	for i := range s {
		s[i] = 0
	}
}

// PlaceResolved writes an already-resolved, OS-supplied absolute path
// (e.g. from a /proc/<pid>/exe readlink) right-aligned into scratch,
// for backends that obtain a canonical path from the host kernel
// directly instead of walking a dentry/mount graph themselves. A
// non-empty path is always marked resolved (an empty one yields the
// unresolved result, Offset -1); a path longer than the
// reconstruction segment is truncated from the left, keeping the
// rightmost (most specific) bytes, which is the same truncation
// direction component reads use.
func PlaceResolved(scratch *Scratch, path string) Result {
	scratch.reset()
	cursor := resolveSegmentLen
	cursor = scratch.writeAt(cursor, []byte(path))
	if cursor >= resolveSegmentLen {
		return Result{Offset: -1, Resolve: false}
	}
	return Result{Offset: cursor, Len: resolveSegmentLen - cursor, Resolve: true}
}

// writeAt copies b into the reconstruction segment ending at cursor,
// i.e. into s[cursor-len(b) : cursor], and returns the new cursor.
// cursor is always masked before use.
func (s *Scratch) writeAt(cursor int, b []byte) int {
	cursor = maskPathOffset(cursor)
	start := cursor - len(b)
	if start < PathMax {
		// Would underflow the reconstruction segment; truncate the
		// copy defensively rather than wrap, since a wrap here would
		// silently corrupt the reserved first segment.
		b = b[len(b)-(cursor-PathMax):]
		start = PathMax
	}
	copy(s[start:cursor], b)
	return start
}
