package ppm

import (
	"sync/atomic"

	u "lautenbacher.net/ppmswitch/util"
)

// status flags shared between the edge source and the sampling loop
const (
	statusStart    uint32 = 1 << 0 // rising edge seen, not yet consumed
	statusComplete uint32 = 1 << 1 // falling edge seen, not yet consumed
	statusStop     uint32 = 1 << 2 // pulse finished, counting paused
)

// averager divides each finished pulse by the window size and emits the
// accumulated value once window pulses have been collected. The
// truncating division happens per pulse, before accumulation.
type averager struct {
	window uint32
	count  uint32
	acc    uint32
}

func newAverager(window int) averager {
	if window < 1 {
		window = 1
	}
	return averager{window: uint32(window)}
}

func (a *averager) add(ticks uint32) (PulseSample, bool) {
	if a.window == 1 {
		return PulseSample(ticks), true
	}
	a.acc += ticks / a.window
	a.count++
	if a.count < a.window {
		return 0, false
	}
	out := a.acc
	a.acc = 0
	a.count = 0
	return PulseSample(out), true
}

// emitter is the part shared by both sampling strategies: averaging and
// the single-slot handoff to the consumer.
type emitter struct {
	avg     averager
	samples *u.Slot[PulseSample]
}

func newEmitter(window int, samples *u.Slot[PulseSample]) emitter {
	return emitter{avg: newAverager(window), samples: samples}
}

func (e *emitter) emit(ticks uint32) {
	if sample, ok := e.avg.add(ticks); ok {
		e.samples.Offer(sample)
	}
}

// EdgeSampler measures pulses from asynchronous edge notifications.
//
// Edge runs in the context of the edge source (an interrupt handler on a
// microcontroller, a goroutine here) and only sets status flags. Step
// runs once per iteration of the sampling loop and owns the tick counter.
type EdgeSampler struct {
	emitter
	status  atomic.Uint32
	ticks   uint32
	running bool
}

// NewEdgeSampler creates an EdgeSampler delivering into samples. Counting
// is paused until the first rising edge.
func NewEdgeSampler(window int, samples *u.Slot[PulseSample]) *EdgeSampler {
	s := &EdgeSampler{emitter: newEmitter(window, samples)}
	s.status.Store(statusStop)
	return s
}

// Edge records a signal transition. It is safe to call concurrently with
// Step.
func (s *EdgeSampler) Edge(rising bool) {
	if rising {
		s.status.Or(statusStart)
	} else {
		s.status.Or(statusComplete)
	}
}

// Step advances the sampler by one tick. A pending start wins over a
// pending completion: the pulse in between is lost.
func (s *EdgeSampler) Step() {
	st := s.status.Load()
	switch {
	case st == 0:
		s.ticks++
	case st&statusStart != 0:
		// clearing stop starts counting with the next step
		if s.status.CompareAndSwap(st, 0) {
			s.ticks = 0
			s.running = true
		}
	case st&statusComplete != 0:
		if s.status.CompareAndSwap(st, (st&^statusComplete)|statusStop) {
			if s.running {
				s.emit(s.ticks)
			}
			s.running = false
			s.ticks = 0
		}
	}
}

// PollSampler measures pulses by comparing consecutive input levels.
type PollSampler struct {
	emitter
	primed  bool
	prev    bool
	running bool
	ticks   uint32
}

// NewPollSampler creates a PollSampler delivering into samples.
func NewPollSampler(window int, samples *u.Slot[PulseSample]) *PollSampler {
	return &PollSampler{emitter: newEmitter(window, samples)}
}

// Step consumes one level reading. The first reading only primes the
// sampler so that a pulse already in progress at start is not measured.
func (s *PollSampler) Step(level bool) {
	if !s.primed {
		s.primed = true
		s.prev = level
		return
	}
	switch {
	case s.prev && level:
		s.ticks++
	case !s.prev && level:
		s.ticks = 0
		s.running = true
	case s.prev && !level:
		if s.running {
			s.emit(s.ticks)
		}
		s.running = false
	}
	s.prev = level
}
