package stream

import "sync"

// Subscriber is one consumer of broker events. Delivery is best-effort:
// each subscriber holds a bounded buffer and a credit balance, and an
// event is dropped for a subscriber that has run out of either. A slow
// consumer loses events rather than stalling the run that produced them.
type Subscriber struct {
	id string
	ch chan *Event

	mu      sync.Mutex
	credits int64
	closed  bool
}

// NewSubscriber creates a subscriber with the given buffer size and
// initial credit balance.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	return &Subscriber{
		id:      id,
		ch:      make(chan *Event, bufferSize),
		credits: initialCredits,
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel events arrive on. It is closed when the
// subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants the subscriber permission to receive n more events.
// Consumers replenish credits as they drain their channel.
func (s *Subscriber) AddCredits(n int64) {
	s.mu.Lock()
	s.credits += n
	s.mu.Unlock()
}

// Credits reports the remaining credit balance.
func (s *Subscriber) Credits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

// send delivers evt if the subscriber has a credit and buffer room, and
// reports whether the event was accepted. It never blocks. A credit is
// only spent on accepted events.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.credits <= 0 {
		return false
	}
	select {
	case s.ch <- evt:
		s.credits--
		return true
	default:
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
