package ppm

import (
	"log/slog"
)

// Transition describes a latch decision that changed state.
type Transition struct {
	Sample   PulseSample
	Action   Action
	From     LatchState
	To       LatchState
	Forward  bool
	Backward bool
}

// Observer receives diagnostics from the switch. Implementations must not
// block: they are called from the control loop and never influence it.
type Observer interface {
	SampleMeasured(sample PulseSample)
	Calibrated(thresholds Thresholds)
	Transition(tr Transition)
}

type NopObserver struct{}

func (NopObserver) SampleMeasured(PulseSample) {}
func (NopObserver) Calibrated(Thresholds)      {}
func (NopObserver) Transition(Transition)      {}

// LogObserver writes diagnostics to a slog logger. Samples are logged at
// debug level only.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) SampleMeasured(sample PulseSample) {
	o.logger.Debug("Pulse measured", "ticks", sample)
}

func (o *LogObserver) Calibrated(th Thresholds) {
	o.logger.Info("Calibration finished", "neutral", th.Neutral, "forward", th.Forward, "backward", th.Backward)
}

func (o *LogObserver) Transition(tr Transition) {
	o.logger.Info("Latch transition", "action", tr.Action, "sample", tr.Sample,
		"from", tr.From, "to", tr.To, "forward", tr.Forward, "backward", tr.Backward)
}

// MultiObserver fans every event out to all observers in order.
type MultiObserver []Observer

func (m MultiObserver) SampleMeasured(sample PulseSample) {
	for _, o := range m {
		o.SampleMeasured(sample)
	}
}

func (m MultiObserver) Calibrated(th Thresholds) {
	for _, o := range m {
		o.Calibrated(th)
	}
}

func (m MultiObserver) Transition(tr Transition) {
	for _, o := range m {
		o.Transition(tr)
	}
}
