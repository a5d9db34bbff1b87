package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSlot(t *testing.T) {
	s := NewSlot[int]()
	assert.NotNil(t, s.notify, "notify channel should be initialized")
	assert.False(t, s.HasPending())
	_, ok := s.Take()
	assert.False(t, ok, "empty slot must not yield a value")
}

func TestSlot_OfferAndTake(t *testing.T) {
	s := NewSlot[uint32]()

	assert.True(t, s.Offer(1500))
	assert.True(t, s.HasPending())

	select {
	case <-s.Channel():
	default:
		t.Fatal("should have received a notification")
	}

	v, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, uint32(1500), v)
	assert.False(t, s.HasPending())

	_, ok = s.Take()
	assert.False(t, ok, "value must only be taken once")
}

func TestSlot_NeverOverwritesUnconsumedValue(t *testing.T) {
	s := NewSlot[int]()

	assert.True(t, s.Offer(1))
	assert.False(t, s.Offer(2))
	assert.False(t, s.Offer(3))
	assert.Equal(t, uint64(2), s.Dropped())

	v, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, 1, v, "first value must survive later offers")

	assert.True(t, s.Offer(4))
	v, _ = s.Take()
	assert.Equal(t, 4, v)
}

func TestSlot_TakeClearsNotification(t *testing.T) {
	s := NewSlot[int]()
	s.Offer(1)
	s.Take()

	select {
	case <-s.Channel():
		t.Fatal("channel should be empty after Take")
	default:
	}
}

func TestSlot_Concurrency(t *testing.T) {
	s := NewSlot[int]()
	const total = 1000
	done := make(chan struct{})

	var accepted int
	go func() {
		for i := 0; i < total; i++ {
			if s.Offer(i) {
				accepted++
			}
		}
		close(done)
	}()

	var consumed []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-s.Channel():
				if v, ok := s.Take(); ok {
					consumed = append(consumed, v)
				}
			case <-done:
				if v, ok := s.Take(); ok {
					consumed = append(consumed, v)
				}
				return
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, accepted, len(consumed), "every accepted value must be consumed exactly once")
	assert.Equal(t, uint64(total-accepted), s.Dropped())
	for i := 1; i < len(consumed); i++ {
		assert.Greater(t, consumed[i], consumed[i-1], "values must arrive in order")
	}
}

func TestLatest_PublishAndValue(t *testing.T) {
	l := NewLatest[string]()
	l.Publish("calibrating")
	l.Publish("running")

	select {
	case <-l.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-l.Channel():
		t.Fatal("only one notification should be pending")
	default:
	}
	assert.Equal(t, "running", l.Value(), "Value should be the last published value")
}
