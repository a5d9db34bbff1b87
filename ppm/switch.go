package ppm

import (
	"fmt"
	"log/slog"
	"sync"

	u "lautenbacher.net/ppmswitch/util"
)

// Input is the signal line the switch samples. Depending on the strategy
// either ReadLevel is polled or the handler passed to SetEdgeHandler is
// called on every transition.
type Input interface {
	ReadLevel() bool
	SetEdgeHandler(handler func(rising bool))
}

// OutputDriver sets the two latched output lines.
type OutputDriver interface {
	SetForward(on bool) error
	SetBackward(on bool) error
}

type SwitchConfig struct {
	CalibrationSamples int
	AveragingWindow    int
	Fraction           Fraction
	Strategy           Strategy
	// SamplerCPU pins the sampling loop to a CPU, -1 disables pinning
	SamplerCPU int
}

type Phase int

const (
	Calibrating Phase = iota
	Running
)

func (p Phase) String() string {
	if p == Calibrating {
		return "calibrating"
	}
	return "running"
}

// Status is a snapshot of the switch published after every sample.
type Status struct {
	Phase      Phase
	Collected  int
	Required   int
	Thresholds Thresholds
	State      LatchState
	Asserted   Output
	Forward    bool
	Backward   bool
	LastSample PulseSample
	Samples    uint64
	Dropped    uint64
}

// Switch wires sampler, calibrator and latch together and applies the
// latch decisions to the output driver.
type Switch struct {
	cfg        SwitchConfig
	input      Input
	out        OutputDriver
	obs        Observer
	samples    *u.Slot[PulseSample]
	edge       *EdgeSampler
	poll       *PollSampler
	calibrator *Calibrator
	latch      *Latch
	status     *u.Latest[Status]
	processed  uint64
	last       PulseSample
}

func NewSwitch(cfg SwitchConfig, input Input, out OutputDriver, obs Observer) (*Switch, error) {
	if cfg.Fraction.Denominator == 0 {
		return nil, ErrInvalidFraction
	}
	if obs == nil {
		obs = NopObserver{}
	}
	if cfg.CalibrationSamples < 1 {
		cfg.CalibrationSamples = 1
	}
	s := &Switch{
		cfg:        cfg,
		input:      input,
		out:        out,
		obs:        obs,
		samples:    u.NewSlot[PulseSample](),
		calibrator: NewCalibrator(cfg.CalibrationSamples, cfg.Fraction),
		status:     u.NewLatest[Status](),
	}
	switch cfg.Strategy {
	case StrategyEdge:
		s.edge = NewEdgeSampler(cfg.AveragingWindow, s.samples)
		input.SetEdgeHandler(s.edge.Edge)
	case StrategyPoll:
		s.poll = NewPollSampler(cfg.AveragingWindow, s.samples)
	default:
		return nil, fmt.Errorf("unknown sampling strategy: %q", cfg.Strategy)
	}
	s.publish()
	return s, nil
}

// Status gives access to the latest published snapshot.
func (s *Switch) Status() *u.Latest[Status] {
	return s.status
}

// Run starts the sampling loop in its own goroutine and consumes samples
// in the calling goroutine until stop is closed.
func (s *Switch) Run(stop <-chan bool) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sampleLoop(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			slog.Info("Ending switch control loop")
			return
		case <-s.samples.Channel():
			s.Poll()
		}
	}
}

// sampleLoop busy-polls on purpose: one iteration is one tick.
func (s *Switch) sampleLoop(stop <-chan bool) {
	if err := u.PinToCPU(s.cfg.SamplerCPU); err != nil {
		slog.Warn("Sampling loop not pinned", "error", err)
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.Step()
	}
}

// Step advances the active sampler by one tick.
func (s *Switch) Step() {
	if s.edge != nil {
		s.edge.Step()
	} else {
		s.poll.Step(s.input.ReadLevel())
	}
}

// Poll takes a pending sample, if any, and processes it.
func (s *Switch) Poll() bool {
	sample, ok := s.samples.Take()
	if ok {
		s.Process(sample)
	}
	return ok
}

// Process feeds one sample to the calibrator or, once calibrated, to the
// latch.
func (s *Switch) Process(sample PulseSample) {
	s.processed++
	s.last = sample
	s.obs.SampleMeasured(sample)
	defer s.publish()

	if s.latch == nil {
		s.calibrate(sample)
		return
	}

	from := s.latch.State()
	action := s.latch.Feed(sample)
	switch action {
	case NoAction:
		return
	case ToggleForward:
		if err := s.out.SetForward(s.latch.ForwardOn()); err != nil {
			slog.Error("Failed to set forward output", "error", err)
		}
	case ToggleBackward:
		if err := s.out.SetBackward(s.latch.BackwardOn()); err != nil {
			slog.Error("Failed to set backward output", "error", err)
		}
	}
	s.obs.Transition(Transition{
		Sample:   sample,
		Action:   action,
		From:     from,
		To:       s.latch.State(),
		Forward:  s.latch.ForwardOn(),
		Backward: s.latch.BackwardOn(),
	})
}

func (s *Switch) calibrate(sample PulseSample) {
	if !s.calibrator.Add(sample) {
		return
	}
	th, err := s.calibrator.Thresholds()
	if err != nil {
		// an implausible neutral signal stalls the switch in calibration
		slog.Warn("Calibration rejected, collecting again", "error", err)
		s.calibrator = NewCalibrator(s.cfg.CalibrationSamples, s.cfg.Fraction)
		return
	}
	s.latch = NewLatch(th)
	s.calibrator = nil
	s.obs.Calibrated(th)
}

func (s *Switch) publish() {
	st := Status{
		Required:   s.cfg.CalibrationSamples,
		LastSample: s.last,
		Samples:    s.processed,
		Dropped:    s.samples.Dropped(),
	}
	if s.latch == nil {
		st.Phase = Calibrating
		st.Collected = s.calibrator.Collected()
	} else {
		st.Phase = Running
		st.Collected = st.Required
		st.Thresholds = s.latch.Thresholds()
		st.State = s.latch.State()
		st.Asserted = s.latch.Asserted()
		st.Forward = s.latch.ForwardOn()
		st.Backward = s.latch.BackwardOn()
	}
	s.status.Publish(st)
}
