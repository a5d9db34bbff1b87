package util

import (
	"sync"
)

// Slot hands a single value from one producer to one consumer. It never
// queues: while a value is waiting to be taken, further offers are
// dropped and counted.
type Slot[T any] struct {
	mu      sync.Mutex    // Protects value, full and dropped
	value   T             // The waiting value, valid while full is set
	full    bool          // True until the consumer has taken the value
	dropped uint64        // Offers rejected because the slot was occupied
	notify  chan struct{} // Buffered channel of size 1 for notification
}

// NewSlot creates an empty Slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{
		notify: make(chan struct{}, 1),
	}
}

// Offer places value into the slot if it is empty. It is non-blocking
// and returns false when the previous value has not been consumed yet;
// in that case value is discarded.
func (s *Slot[T]) Offer(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		s.dropped++
		return false
	}
	s.value = value
	s.full = true

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// Take reads and clears the slot. The second return value is false when
// the slot was empty.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	value := s.value
	s.value = zero
	s.full = false

	// drop a stale notification so Channel() only fires for new values
	select {
	case <-s.notify:
	default:
	}
	return value, true
}

// Channel returns the notification channel for use in select statements.
func (s *Slot[T]) Channel() <-chan struct{} {
	return s.notify
}

// HasPending reports whether a value is waiting to be taken.
func (s *Slot[T]) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

// Dropped returns the number of offers rejected so far.
func (s *Slot[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Latest holds the most recent value published by a producer. Unlike
// Slot it overwrites: readers only ever care about the current value.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

// NewLatest creates a new Latest instance.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		notify: make(chan struct{}, 1),
	}
}

// Publish replaces the current value. It is non-blocking.
func (l *Latest[T]) Publish(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = value

	select {
	case l.notify <- struct{}{}:
	default:
		// a notification is already pending
	}
}

// Channel returns the notification channel for use in select statements.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

// Value returns the current value.
func (l *Latest[T]) Value() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}
