package archive

import (
	"bytes"
	"testing"

	"github.com/strongdm/execwall/internal/live"
)

func TestWriteReadRoundTrip(t *testing.T) {
	cgid := uint64(42)
	tracker := uint64(7)
	entries := []live.LogEntry{
		{Time: "2026-07-31T00:00:00Z", Event: "execwall.observe", Cgid: &cgid, TrackerID: &tracker, Path: "/usr/bin/true", Mode: "observe"},
		{Time: "2026-07-31T00:00:01Z", Event: "execwall.decision", Cgid: &cgid, TrackerID: &tracker, Path: "/tmp/evil", Mode: "enforce", Decision: "deny"},
	}

	var buf bytes.Buffer
	n, err := WriteTo(&buf, entries)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != len(entries) {
		t.Fatalf("wrote %d entries, want %d", n, len(entries))
	}

	got, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("read %d entries, want %d", len(got), len(entries))
	}
	for i, e := range got {
		if e.Path != entries[i].Path || e.Decision != entries[i].Decision {
			t.Errorf("entry %d = %+v, want %+v", i, e, entries[i])
		}
	}
}

func TestReadFromEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteTo(&buf, nil); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	entries, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}
