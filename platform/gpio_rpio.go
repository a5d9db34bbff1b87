package platform

import (
	"fmt"
	"runtime"

	"github.com/stianeikeland/go-rpio/v4"
	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

// pwmRange is the cycle length of the hardware PWM, so a compare value
// maps 1:1 onto the duty cycle.
const pwmRange = 255

// rpioBackend drives the lines through /dev/gpiomem. Edges are latched by
// the GPIO event detect register and polled by watch.
type rpioBackend struct {
	input    rpio.Pin
	forward  rpio.Pin
	backward rpio.Pin
	pwm      rpio.Pin
	fire     func(rising bool)
	opened   bool
}

func (b *rpioBackend) open(hw c.HardwareConfig, fire func(bool)) error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	b.opened = true
	b.fire = fire

	b.input = rpio.Pin(hw.InputPin)
	b.input.Input()
	b.input.PullDown()
	b.input.Detect(rpio.AnyEdge)

	b.forward = rpio.Pin(hw.ForwardPin)
	b.backward = rpio.Pin(hw.BackwardPin)
	b.pwm = rpio.Pin(hw.PWMPin)
	for _, pin := range []rpio.Pin{b.forward, b.backward, b.pwm} {
		pin.Output()
		pin.Low()
	}
	return nil
}

func (b *rpioBackend) watch(stop <-chan bool) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if b.input.EdgeDetected() {
			b.fire(b.input.Read() == rpio.High)
		} else {
			runtime.Gosched()
		}
	}
}

func (b *rpioBackend) readLevel() bool {
	return b.input.Read() == rpio.High
}

func (b *rpioBackend) write(out ppm.Output, on bool) error {
	pin := b.forward
	if out == ppm.Backward {
		pin = b.backward
	}
	if on {
		pin.High()
	} else {
		pin.Low()
	}
	return nil
}

func (b *rpioBackend) setDuty(compare uint8, freq int) error {
	b.pwm.Mode(rpio.Pwm)
	b.pwm.Freq(freq * pwmRange)
	b.pwm.DutyCycle(uint32(compare), pwmRange)
	return nil
}

func (b *rpioBackend) close() error {
	if !b.opened {
		return nil
	}
	b.input.Detect(rpio.NoEdge)
	b.pwm.Output()
	for _, pin := range []rpio.Pin{b.forward, b.backward, b.pwm} {
		pin.Low()
	}
	b.opened = false
	return rpio.Close()
}
