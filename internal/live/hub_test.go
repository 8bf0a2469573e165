package live

// These tests guard against a production panic where a slow or
// already-torn-down client caused a non-blocking send on a channel
// closed mid-broadcast, and verify the drop-oldest ring behavior used
// to keep a live client's queue bounded.

import "testing"

func TestHubEnqueueAfterClientClosureDoesNotPanic(t *testing.T) {
	t.Parallel()

	hub := NewWebSocketHub(1, 0, 0)
	c := &client{
		id:     "test-client",
		send:   make(chan []byte, 1),
		closed: make(chan struct{}),
		hub:    hub,
	}

	close(c.closed)
	close(c.send)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("enqueue panicked: %v", r)
		}
	}()

	hub.enqueue(c, []byte("payload"))
}

func TestHubEnqueueDropsOldestMessageWhenFull(t *testing.T) {
	t.Parallel()

	hub := NewWebSocketHub(1, 0, 0)
	c := &client{
		id:     "ring-client",
		send:   make(chan []byte, 2),
		closed: make(chan struct{}),
		hub:    hub,
	}

	c.send <- []byte("older")
	c.send <- []byte("newer")

	hub.enqueue(c, []byte("latest"))

	first := <-c.send
	if string(first) != "newer" {
		t.Fatalf("expected 'newer' to remain, got %q", string(first))
	}

	second := <-c.send
	if string(second) != "latest" {
		t.Fatalf("expected 'latest' to be enqueued, got %q", string(second))
	}
}

func TestEventRingBufferWrapsAndPreservesOrder(t *testing.T) {
	rb := NewEventRingBuffer(3)
	for i := 0; i < 5; i++ {
		cgid := uint64(i)
		rb.Add(LogEntry{Event: "exec", Cgid: &cgid})
	}

	got := rb.GetAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 events after wrap, got %d", len(got))
	}
	for i, want := range []uint64{2, 3, 4} {
		if got[i].Cgid == nil || *got[i].Cgid != want {
			t.Fatalf("event %d: expected cgid %d, got %+v", i, want, got[i])
		}
	}
}

func TestEventRingBufferGetTailBeforeWrap(t *testing.T) {
	rb := NewEventRingBuffer(10)
	for i := 0; i < 3; i++ {
		cgid := uint64(i)
		rb.Add(LogEntry{Event: "exec", Cgid: &cgid})
	}

	tail := rb.GetTail(2)
	if len(tail) != 2 {
		t.Fatalf("expected 2 events, got %d", len(tail))
	}
	if *tail[0].Cgid != 1 || *tail[1].Cgid != 2 {
		t.Fatalf("unexpected tail order: %+v", tail)
	}
}

func TestParseLogfmtToJSONExtractsDecisionFields(t *testing.T) {
	line := `time=2026-07-31T00:00:00Z event=enforce cgid=42 tracker=7 path="/usr/bin/curl" mode=enforce decision=deny reason=not_allowlisted len=14`
	entry := parseLogfmtToJSON(line)

	if entry.Event != "enforce" {
		t.Fatalf("event mismatch: %+v", entry)
	}
	if entry.Cgid == nil || *entry.Cgid != 42 {
		t.Fatalf("cgid mismatch: %+v", entry)
	}
	if entry.TrackerID == nil || *entry.TrackerID != 7 {
		t.Fatalf("tracker mismatch: %+v", entry)
	}
	if entry.Path != "/usr/bin/curl" {
		t.Fatalf("path mismatch: %+v", entry)
	}
	if entry.Decision != "deny" {
		t.Fatalf("decision mismatch: %+v", entry)
	}
	if entry.Len == nil || *entry.Len != 14 {
		t.Fatalf("len mismatch: %+v", entry)
	}
}

func TestEmitJSONMarshalsPayload(t *testing.T) {
	hub := NewWebSocketHub(10, 0, 0)
	hub.EmitJSON("policy.reload", map[string]int{"policies": 3})

	events := hub.RecentEvents(0)
	if len(events) == 0 {
		t.Fatalf("expected at least one event (hello + policy.reload)")
	}
	last := events[len(events)-1]
	if last.Event != "policy.reload" {
		t.Fatalf("expected last event policy.reload, got %+v", last)
	}
	if len(last.Payload) == 0 {
		t.Fatalf("expected non-empty payload")
	}
}
