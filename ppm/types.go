// Package ppm turns a single-channel RC PPM servo signal into two
// latching toggle outputs.
//
// Pulse widths are measured by a sampler, the first samples after start
// calibrate the neutral stick position, and every later sample is fed to
// a latch which toggles the forward or backward output once per stick
// deflection. The latch re-arms only after the stick went back to neutral.
package ppm

import "fmt"

// PulseSample is the width of one high pulse, counted in sampling ticks.
// The duration of a tick depends on the sampling loop and is never
// converted: calibration makes all decisions relative to the measured
// neutral width.
type PulseSample uint32

// Fraction scales the neutral-to-full-deflection distance down to the
// offset at which an output toggles.
type Fraction struct {
	Numerator   uint32 `yaml:"Numerator"`
	Denominator uint32 `yaml:"Denominator"`
}

var (
	// FortyPercent toggles at 40% of a full deflection (5 sample variant).
	FortyPercent = Fraction{Numerator: 4, Denominator: 10}
	// Half toggles at 50% of a full deflection (averaging variant).
	Half = Fraction{Numerator: 5, Denominator: 10}
)

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

// Thresholds are derived once from the calibrated neutral width and never
// change afterwards.
type Thresholds struct {
	Neutral  PulseSample
	Forward  PulseSample
	Backward PulseSample
}

// Valid reports whether Backward < Neutral < Forward holds.
func (t Thresholds) Valid() bool {
	return t.Backward < t.Neutral && t.Neutral < t.Forward
}

// InNeutralBand reports whether sample lies strictly between both
// thresholds.
func (t Thresholds) InNeutralBand(sample PulseSample) bool {
	return t.Backward < sample && sample < t.Forward
}

type LatchState int

const (
	Armed LatchState = iota
	Engaged
)

func (s LatchState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Engaged:
		return "engaged"
	default:
		return fmt.Sprintf("LatchState(%d)", int(s))
	}
}

// Output names one of the two toggle outputs.
type Output int

const (
	None Output = iota
	Forward
	Backward
)

func (o Output) String() string {
	switch o {
	case None:
		return "none"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Output(%d)", int(o))
	}
}

// Action is the outcome of feeding one sample to the latch.
type Action int

const (
	NoAction Action = iota
	Rearm
	ToggleForward
	ToggleBackward
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "none"
	case Rearm:
		return "rearm"
	case ToggleForward:
		return "toggle-forward"
	case ToggleBackward:
		return "toggle-backward"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Strategy selects how pulse widths are measured.
type Strategy string

const (
	// StrategyEdge counts loop iterations between edge notifications
	// delivered asynchronously by the input line.
	StrategyEdge Strategy = "edge"
	// StrategyPoll samples the input level on every loop iteration.
	StrategyPoll Strategy = "poll"
)
