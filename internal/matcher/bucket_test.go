package matcher

import "testing"

func TestPaddedLenSmallBucketsAre24Multiples(t *testing.T) {
	cases := []struct {
		l    int
		want int
	}{
		{0, 24},
		{1, 24},
		{13, 24}, // "/usr/bin/true" length, spec scenario S1
		{24, 24},
		{25, 48},
		{143, 144},
	}
	for _, c := range cases {
		if got := PaddedLen(c.l, true); got != c.want {
			t.Errorf("PaddedLen(%d) = %d, want %d", c.l, got, c.want)
		}
	}
}

func TestPaddedLenBoundary144To256(t *testing.T) {
	if got := PaddedLen(144, true); got != 144 {
		t.Errorf("PaddedLen(144) = %d, want 144", got)
	}
	if got := PaddedLen(145, true); got != 256 {
		t.Errorf("PaddedLen(145) = %d, want 256", got)
	}
}

func TestPaddedLenSmallKeyFallbackCapsAt512(t *testing.T) {
	if got := PaddedLen(1000, false); got != 512 {
		t.Errorf("PaddedLen(1000, false) = %d, want 512 (fallback cap)", got)
	}
}

func TestPaddedLenLargeBuckets(t *testing.T) {
	cases := []struct {
		l    int
		want int
	}{
		{257, 512},
		{512, 512},
		{513, 1024},
		{2048, 2048},
		{2049, 4096},
	}
	for _, c := range cases {
		if got := PaddedLen(c.l, true); got != c.want {
			t.Errorf("PaddedLen(%d) = %d, want %d", c.l, got, c.want)
		}
	}
}

// TestInvariant1BucketIndexEqualityIffPaddedLenEquality checks spec
// invariant 1: bucket_index(p) == bucket_index(p') iff their padded
// lengths are equal.
func TestInvariant1BucketIndexEqualityIffPaddedLenEquality(t *testing.T) {
	lens := []int{0, 1, 13, 23, 24, 25, 100, 144, 145, 256, 257, 511, 512, 513, 4096}
	for _, a := range lens {
		for _, b := range lens {
			idxA := BucketIndex(a, true)
			idxB := BucketIndex(b, true)
			paddedEq := PaddedLen(a, true) == PaddedLen(b, true)
			if (idxA == idxB) != paddedEq {
				t.Errorf("len %d vs %d: bucketIndexEq=%v paddedLenEq=%v", a, b, idxA == idxB, paddedEq)
			}
		}
	}
}

func TestStoreInsertAndContains(t *testing.T) {
	s := NewStore(true)
	if !s.Insert(7, "/usr/bin/true") {
		t.Fatalf("insert failed")
	}
	if !s.Contains(7, "/usr/bin/true") {
		t.Fatalf("expected membership")
	}
	if s.Contains(7, "/tmp/evil") {
		t.Fatalf("expected miss for unlisted path")
	}
	if s.Contains(9, "/usr/bin/true") {
		t.Fatalf("expected miss for wrong policy id")
	}
}

// TestScenarioS6BucketBoundary implements spec scenario S6: a stored
// 145-byte path crosses into bucket 6 (width 256); a 144-byte prefix of
// it must miss (different bucket / different padded key), and the exact
// 145-byte path must hit.
func TestScenarioS6BucketBoundary(t *testing.T) {
	long := make([]byte, 145)
	for i := range long {
		long[i] = 'a'
	}
	stored := string(long)
	prefix := stored[:144]

	s := NewStore(true)
	if !s.Insert(1, stored) {
		t.Fatalf("insert failed")
	}
	if s.Contains(1, prefix) {
		t.Fatalf("144-byte prefix must miss (crosses bucket boundary)")
	}
	if !s.Contains(1, stored) {
		t.Fatalf("exact 145-byte path must hit")
	}
	if BucketIndex(len(stored), true) != 6 {
		t.Fatalf("expected 145-byte path in bucket 6, got %d", BucketIndex(len(stored), true))
	}
}

func TestPadKeyTruncatesOversizedInput(t *testing.T) {
	got := PadKey("abcdef", 4)
	if got != "abcd" {
		t.Fatalf("PadKey truncate = %q, want %q", got, "abcd")
	}
}

func TestValidateWidth(t *testing.T) {
	if err := validateWidth(24); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateWidth(25); err == nil {
		t.Fatalf("expected error for invalid width")
	}
}
