package platform

import (
	"math"
	"sync"
	"time"

	c "lautenbacher.net/ppmswitch/config"
	u "lautenbacher.net/ppmswitch/util"
)

// simSignal generates a single channel PPM signal from a virtual stick.
// The position runs from -1 (full backward) over 0 (neutral) to +1 (full
// forward) and maps linearly onto MinPulse..NeutralPulse..MaxPulse.
type simSignal struct {
	cfg      c.SimulationConfig
	mu       sync.Mutex
	position float64
	epoch    time.Time
}

func newSimSignal(cfg c.SimulationConfig) *simSignal {
	return &simSignal{cfg: cfg, epoch: time.Now()}
}

func (s *simSignal) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetPosition moves the stick, clamped to [-1, 1].
func (s *simSignal) SetPosition(pos float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = u.Clamp(pos, -1, 1)
	return s.position
}

// Nudge moves the stick by delta and returns the new position.
func (s *simSignal) Nudge(delta float64) float64 {
	return s.SetPosition(s.Position() + delta)
}

// Width returns the high time of the pulse for the current position.
func (s *simSignal) Width() time.Duration {
	pos := s.Position()
	span := s.cfg.MaxPulse - s.cfg.NeutralPulse
	if pos < 0 {
		span = s.cfg.NeutralPulse - s.cfg.MinPulse
	}
	return s.cfg.NeutralPulse + time.Duration(math.Round(pos*float64(span)))
}

// levelAt reports the line level elapsed after the start of the signal.
// Every frame starts with the high pulse.
func (s *simSignal) levelAt(elapsed time.Duration) bool {
	return elapsed%s.cfg.FramePeriod < s.Width()
}

func (s *simSignal) Level() bool {
	return s.levelAt(time.Since(s.epoch))
}

// run calls fire for every transition of the signal until stop is closed.
func (s *simSignal) run(stop <-chan bool, fire func(rising bool)) {
	for {
		width := s.Width()
		fire(true)
		if !sleepOrStop(width, stop) {
			return
		}
		fire(false)
		if !sleepOrStop(s.cfg.FramePeriod-width, stop) {
			return
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
