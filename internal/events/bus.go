package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"coordline/internal/domain"
)

type Type string

const (
	WorkCreated       Type = "work-created"
	WorkTransitioned  Type = "work-transitioned"
	WorkMessage       Type = "work-message"
	ProgressUpdated   Type = "progress-updated"
	FieldUpdated      Type = "field-updated"
	WorkflowCreated   Type = "workflow-created"
	WorkAssigned      Type = "work-assigned"
	PauseAdvised      Type = "pause-advised"
	DependencyCleared Type = "dependency-cleared"

	// All subscribes to every type.
	All Type = "*"
)

// Event is one lifecycle notification. Work carries a snapshot of the item
// after the mutation, when the event concerns a single item.
type Event struct {
	Seq    uint64           `json:"seq"`
	Type   Type             `json:"type"`
	WorkID string           `json:"work_id,omitempty"`
	At     time.Time        `json:"at"`
	Data   map[string]any   `json:"data,omitempty"`
	Work   *domain.WorkItem `json:"work,omitempty"`
	Edge   *domain.Edge     `json:"edge,omitempty"`
}

// Publisher is what the engine writes events to.
type Publisher interface {
	Publish(Event)
}

type Subscriber func(Event)

type subscription struct {
	ch       chan Event
	reliable bool
}

// Bus is a fan-out with one buffered channel per subscriber, each drained by
// one goroutine. For a plain subscriber a full channel drops the event and
// counts the drop. A reliable subscriber is never dropped: Publish waits for
// room in its channel instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]*subscription
	bufferSize  int
	seq         atomic.Uint64
	dropped     atomic.Uint64
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Type][]*subscription),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers fn for one type, or for every type with All. Returns
// an unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	return b.subscribe(t, fn, false)
}

// SubscribeReliable is Subscribe with backpressure: every event reaches fn,
// and Publish blocks while fn's buffer is full. fn must not publish to the
// same bus.
func (b *Bus) SubscribeReliable(t Type, fn Subscriber) func() {
	return b.subscribe(t, fn, true)
}

func (b *Bus) subscribe(t Type, fn Subscriber, reliable bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan Event, b.bufferSize), reliable: reliable}
	b.subscribers[t] = append(b.subscribers[t], sub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			b.deliver(fn, ev)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[t]
		for i, s := range subs {
			if s == sub {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}
}

func (b *Bus) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic", "type", ev.Type, "seq", ev.Seq, "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}

// Publish stamps a sequence number and hands the event to every matching
// subscriber. It only blocks on reliable subscribers with a full buffer.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev.Seq = b.seq.Add(1)
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.send(b.subscribers[ev.Type], ev)
	if ev.Type != All {
		b.send(b.subscribers[All], ev)
	}
}

func (b *Bus) send(subs []*subscription, ev Event) {
	for _, s := range subs {
		if s.reliable {
			s.ch <- ev
			continue
		}
		select {
		case s.ch <- ev:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event dropped", "type", ev.Type, "seq", ev.Seq, "work_id", ev.WorkID, "dropped_total", n)
		}
	}
}

// Dropped is the number of deliveries lost to full buffers of plain
// subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription and waits for queued events to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	for t, subs := range b.subscribers {
		for _, s := range subs {
			close(s.ch)
		}
		delete(b.subscribers, t)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
