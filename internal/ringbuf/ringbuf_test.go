package ringbuf

import (
	"sync"
	"testing"
	"time"
)

func TestPublishAndRead(t *testing.T) {
	rb := New(1024)
	ok, err := rb.Publish([]byte("hello"))
	if err != nil || !ok {
		t.Fatalf("publish = (%v, %v), want (true, nil)", ok, err)
	}
	got, err := rb.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	rb := New(10)
	ok, err := rb.Publish(make([]byte, 10))
	if err != nil || !ok {
		t.Fatalf("first publish should succeed")
	}
	ok, err = rb.Publish(make([]byte, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("second publish should be dropped (buffer full)")
	}
}

func TestPublishRejectsOversizedRecord(t *testing.T) {
	rb := New(10)
	if _, err := rb.Publish(make([]byte, 11)); err != ErrRecordTooLarge {
		t.Fatalf("expected ErrRecordTooLarge, got %v", err)
	}
}

func TestCloseUnblocksReaders(t *testing.T) {
	rb := New(1024)
	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		_, readErr = rb.Read()
	}()
	time.Sleep(10 * time.Millisecond)
	rb.Close()
	wg.Wait()
	if readErr != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", readErr)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	rb := New(1024)
	rb.Close()
	if _, err := rb.Publish([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestReservationOrderPreserved(t *testing.T) {
	rb := New(1024)
	for i := 0; i < 5; i++ {
		rb.Publish([]byte{byte(i)})
	}
	for i := 0; i < 5; i++ {
		got, _ := rb.Read()
		if got[0] != byte(i) {
			t.Fatalf("record %d out of order: got %d", i, got[0])
		}
	}
}
