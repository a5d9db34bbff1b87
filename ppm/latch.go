package ppm

// Latch turns pulse widths into edge-triggered toggles. Holding the stick
// deflected toggles an output exactly once; only a sample inside the
// neutral band re-arms the latch, whatever direction engaged it.
type Latch struct {
	thresholds Thresholds
	state      LatchState
	asserted   Output
	forward    bool
	backward   bool
}

func NewLatch(thresholds Thresholds) *Latch {
	return &Latch{thresholds: thresholds}
}

// Feed evaluates one sample. The rules are checked in order:
//  1. neutral band (strictly between the thresholds): re-arm
//  2. below backward and armed: toggle backward, engage
//  3. above forward and armed: toggle forward, engage
//  4. anything else, including a sample exactly at a threshold: nothing
//
// Rearm is only reported when the latch actually was engaged.
func (l *Latch) Feed(sample PulseSample) Action {
	switch {
	case l.thresholds.InNeutralBand(sample):
		if l.state == Engaged {
			l.state = Armed
			l.asserted = None
			return Rearm
		}
	case sample < l.thresholds.Backward && l.state == Armed:
		l.backward = !l.backward
		l.state = Engaged
		l.asserted = Backward
		return ToggleBackward
	case sample > l.thresholds.Forward && l.state == Armed:
		l.forward = !l.forward
		l.state = Engaged
		l.asserted = Forward
		return ToggleForward
	}
	return NoAction
}

func (l *Latch) State() LatchState {
	return l.state
}

// Asserted returns the output toggled by the current engagement, None
// while armed.
func (l *Latch) Asserted() Output {
	return l.asserted
}

func (l *Latch) ForwardOn() bool {
	return l.forward
}

func (l *Latch) BackwardOn() bool {
	return l.backward
}

func (l *Latch) Thresholds() Thresholds {
	return l.thresholds
}
