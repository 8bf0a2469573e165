// Package matcher implements the length-bucketed exact-match allowlist
// lookup: paths are zero-padded into one of eleven fixed-width buckets
// and checked for membership, trading a single wide hash table for
// several narrow ones so average hashing cost scales with the bucket's
// width rather than a worst-case PATH_MAX (spec §4.3).
package matcher

import "fmt"

// BucketWidths are the eleven fixed key widths, in ascending order. The
// first seven (indices 0..6) cover the 24-multiples up to 144 and the
// 256 cap; the remaining four (7..10) are the large-key buckets absent
// on hosts whose verifier rejects hash keys over 512 bytes.
var BucketWidths = [11]int{24, 48, 72, 96, 120, 144, 256, 512, 1024, 2048, 4096}

// SmallKeyBucketCount is the number of buckets available on a host
// whose static verifier lacks large hash-key support: only the first
// eight buckets exist; strings of 145..256 bytes still use bucket 6
// (width 256), and bucket 7 (width 512) absorbs every string longer
// than 256 bytes.
const SmallKeyBucketCount = 8

// keyIncSize is the 24-byte alignment step for the small buckets,
// matching STRING_MAPS_KEY_INC_SIZE in the reference implementation.
const keyIncSize = 24

// smallBucketCeiling is the largest length still routed through the
// 24-byte-multiple small buckets.
const smallBucketCeiling = 144

// PaddedLen returns the bucket width a string of length L is padded
// to, following spec §4.3's bucket-selection rules. largeKeysSupported
// selects between the full eleven-bucket family and the eight-bucket
// fallback.
func PaddedLen(l int, largeKeysSupported bool) int {
	if l <= smallBucketCeiling {
		padded := ((l + keyIncSize - 1) / keyIncSize) * keyIncSize
		if padded == 0 {
			padded = keyIncSize
		}
		return padded
	}
	if l <= 256 {
		return 256
	}
	if !largeKeysSupported {
		return 512
	}
	for _, w := range BucketWidths[7:] {
		if l <= w {
			return w
		}
	}
	return BucketWidths[10]
}

// BucketIndex returns the bucket index (0..10, or 0..7 when large keys
// are unsupported) a string of length L is stored in. Dispatch is a
// closed switch in Store, never a parametrised lookup, per spec §9's
// "distinct kernel map, distinct static key width" guidance.
func BucketIndex(l int, largeKeysSupported bool) int {
	padded := PaddedLen(l, largeKeysSupported)
	for i, w := range BucketWidths {
		if w == padded {
			if !largeKeysSupported && i >= SmallKeyBucketCount {
				return SmallKeyBucketCount - 1
			}
			return i
		}
	}
	// Unreachable for any non-negative l, but out-of-range indices map
	// to a safe miss rather than a panic (spec §4.3's "null table").
	return -1
}

// PadKey zero-pads p up to width bytes, mirroring the scratch buffer's
// implicit zero padding: a query's bytes followed by the all-zero third
// segment already look exactly like this to a bucket lookup.
func PadKey(p string, width int) string {
	if len(p) >= width {
		return p[:width]
	}
	buf := make([]byte, width)
	copy(buf, p)
	return string(buf)
}

func validateWidth(width int) error {
	for _, w := range BucketWidths {
		if w == width {
			return nil
		}
	}
	return fmt.Errorf("matcher: %d is not a valid bucket width", width)
}
