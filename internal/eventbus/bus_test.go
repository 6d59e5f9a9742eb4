package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishDelivers(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeJobsIngested, Data: 42})

	select {
	case e := <-ch:
		if e.Type != TypeJobsIngested {
			t.Fatalf("type = %q, want %q", e.Type, TypeJobsIngested)
		}
		if e.Data != 42 {
			t.Fatalf("data = %v, want 42", e.Data)
		}
		if e.Time.IsZero() {
			t.Fatal("event time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishFanOut(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, unsub1 := b.Subscribe(1)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(1)
	defer unsub2()

	b.Publish(Event{Type: TypeFeedChanged})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeFeedChanged {
				t.Fatalf("subscriber %d: type = %q", i, e.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}

func TestPublishNonBlockingWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeSendFailed, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// The buffered event is the first one; overflow was dropped, not queued.
	e := <-ch
	if e.Data != 0 {
		t.Fatalf("buffered data = %v, want 0", e.Data)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event: %+v", e)
	default:
	}
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	unsub()

	// Must not panic on the closed channel.
	b.Publish(Event{Type: TypeJobsIngested})
}

func TestUnsubscribeIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub()
}

func TestPublishUnsubscribeConcurrent(t *testing.T) {
	t.Parallel()

	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		_, unsub := b.Subscribe(1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Publish(Event{Type: TypeFeedChanged})
			}
		}()
		go func() {
			defer wg.Done()
			unsub()
		}()
	}
	wg.Wait()
}
