package vessel

import (
	"testing"
	"time"
)

func TestEventBusDelivery(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.publish(EventStarted, "abc")
	select {
	case e := <-ch:
		if e.Type != EventStarted || e.ID != "abc" {
			t.Fatalf("got %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Fatal("event without timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	// nobody is draining; publishing past the buffer must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*2; i++ {
			b.publish(EventDied, "x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := len(ch); got != eventBuffer {
		t.Fatalf("buffered %d events, want %d", got, eventBuffer)
	}
}

func TestEventBusCancelIdempotent(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// publishing after cancel must not panic on the closed channel
	b.publish(EventStopped, "y")
}

func TestEventBusClose(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.Subscribe()
	defer cancel()
	b.close()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after bus close")
	}
}
