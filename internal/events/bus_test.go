package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10, nil)

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(WorkCreated, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bus.Publish(Event{Type: WorkCreated, WorkID: "w1", Data: map[string]any{"title": "x"}})
	bus.Publish(Event{Type: WorkTransitioned, WorkID: "w1"})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Seq != 1 || received[0].WorkID != "w1" || received[0].At.IsZero() {
		t.Fatalf("unexpected event: %+v", received[0])
	}
}

func TestBus_WildcardKeepsOrder(t *testing.T) {
	bus := NewBus(10, nil)
	var mu sync.Mutex
	var seqs []uint64
	bus.Subscribe(All, func(e Event) {
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
	})
	for _, typ := range []Type{WorkCreated, WorkMessage, WorkTransitioned, FieldUpdated} {
		bus.Publish(Event{Type: typ})
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != 4 {
		t.Fatalf("expected 4 events, got %d", len(seqs))
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("events out of order: %v", seqs)
		}
	}
}

func TestBus_FullBufferDropsAndCounts(t *testing.T) {
	bus := NewBus(1, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(WorkCreated, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	bus.Publish(Event{Type: WorkCreated})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("subscriber never started")
	}
	// one slot in the buffer, then drops
	bus.Publish(Event{Type: WorkCreated})
	bus.Publish(Event{Type: WorkCreated})
	bus.Publish(Event{Type: WorkCreated})

	if got := bus.Dropped(); got != 2 {
		t.Fatalf("expected 2 drops, got %d", got)
	}
	close(release)
	bus.Close()
}

func TestBus_UnsubscribeAndPanicRecovery(t *testing.T) {
	bus := NewBus(10, nil)
	var mu sync.Mutex
	calls := 0
	bus.Subscribe(WorkMessage, func(Event) { panic("boom") })
	unsub := bus.Subscribe(WorkMessage, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	bus.Publish(Event{Type: WorkMessage})
	unsub()
	bus.Publish(Event{Type: WorkMessage})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}

func TestBus_ReliableSubscriberWaitsInsteadOfDropping(t *testing.T) {
	bus := NewBus(1, nil)
	var mu sync.Mutex
	var seqs []uint64
	bus.SubscribeReliable(All, func(e Event) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		bus.Publish(Event{Type: WorkCreated})
	}
	bus.Close()

	if got := bus.Dropped(); got != 0 {
		t.Fatalf("expected no drops, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seqs) != 50 {
		t.Fatalf("expected 50 deliveries, got %d", len(seqs))
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("events out of order: %v", seqs)
		}
	}
}
