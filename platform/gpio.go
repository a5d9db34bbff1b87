package platform

import (
	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

// gpioBackend is one of the GPIO libraries the Raspberry Pi platform can
// drive its lines with.
type gpioBackend interface {
	// open configures the input line first, then both outputs low.
	// Transitions of the input line are passed to fire once watch runs.
	open(hw c.HardwareConfig, fire func(rising bool)) error
	// watch delivers input edges until stop is closed.
	watch(stop <-chan bool)
	readLevel() bool
	write(out ppm.Output, on bool) error
	// setDuty runs the PWM line with compare/255 duty at freq Hz.
	setDuty(compare uint8, freq int) error
	close() error
}

func newGPIOBackend(library string) gpioBackend {
	switch library {
	case c.GPIORpio:
		return &rpioBackend{}
	case c.GPIOGpiocdev:
		return &gpiocdevBackend{}
	default:
		return &periphBackend{}
	}
}
