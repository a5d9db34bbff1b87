package platform

import (
	"lautenbacher.net/ppmswitch/ppm"
	u "lautenbacher.net/ppmswitch/util"
)

// Platform defines the interface for abstracting away the real hardware
// from the TUI simulation. Besides being the output driver of the switch
// it is also its input line.
type Platform interface {
	// Start initializes the platform (e.g., opens GPIO, or starts the TUI),
	// drives both outputs low, sets the PWM compare value and waits for
	// the input line to settle.
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// Ready is closed once the input has settled and the switch may sample.
	Ready() <-chan bool

	// ReadLevel reports the current level of the PPM input line.
	ReadLevel() bool

	// SetEdgeHandler registers the callback for input transitions.
	SetEdgeHandler(handler func(rising bool))

	SetForward(on bool) error
	SetBackward(on bool) error

	// SetDuty sets the compare value of the radar motor PWM (0..255).
	SetDuty(compare uint8) error

	// Watch displays status snapshots until the platform is stopped.
	Watch(status *u.Latest[ppm.Status])
}

var (
	_ Platform         = (*RaspberryPiPlatform)(nil)
	_ Platform         = (*TUIPlatform)(nil)
	_ ppm.Input        = Platform(nil)
	_ ppm.OutputDriver = Platform(nil)
)
