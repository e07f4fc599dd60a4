// Package bus provides an in-process, ordered, multi-subscriber broadcast
// of classified scanner events. Publishing never blocks: every subscriber
// owns a queue drained by its own goroutine, so a slow consumer only delays
// itself.
package bus

import (
	"sync"

	"attendance-backend/internal/protocol"
)

// Bus fans classified events out to all active subscribers in publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's view of the bus. Events arrive on C in the
// exact order they were published; C is closed once the bus shuts down or
// the subscription is cancelled.
type Subscription struct {
	C <-chan protocol.Event

	bus        *Bus
	ch         chan protocol.Event
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []protocol.Event
	done       bool
	cancelOnce sync.Once
	cancelled  chan struct{}
}

// Subscribe registers a new consumer. A subscriber only observes events
// published after it subscribes; there is no replay. If the bus is already
// closed the returned subscription's channel closes immediately.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:       b,
		ch:        make(chan protocol.Event, 16),
		cancelled: make(chan struct{}),
	}
	s.C = s.ch
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		s.done = true
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.drain()
	return s
}

// Publish delivers ev to every active subscriber. It never blocks on a
// consumer and is a no-op after Close.
func (b *Bus) Publish(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(ev)
	}
}

// Close shuts the bus down. Pending events are still delivered, then every
// subscriber's channel is closed. Further Publish and Subscribe calls are
// safe no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for s := range subs {
		s.finish()
	}
}

// Cancel detaches the subscription. Pending events are discarded and C is
// closed. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	if s.bus.subs != nil {
		delete(s.bus.subs, s)
	}
	s.bus.mu.Unlock()

	s.cancelOnce.Do(func() { close(s.cancelled) })
	s.finish()
}

func (s *Subscription) push(ev protocol.Event) {
	s.mu.Lock()
	if !s.done {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.done = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Subscription) drain() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.done {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.ch)
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.cancelled:
			close(s.ch)
			return
		}
	}
}
