package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// edgePollTimeout bounds WaitForEdge so the watcher notices stop.
const edgePollTimeout = 100 * time.Millisecond

type periphBackend struct {
	input    gpio.PinIO
	forward  gpio.PinIO
	backward gpio.PinIO
	pwm      gpio.PinIO
	fire     func(rising bool)
}

func periphPin(number int) (gpio.PinIO, error) {
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", number))
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %d", number)
	}
	return pin, nil
}

func (b *periphBackend) open(hw c.HardwareConfig, fire func(bool)) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to init periph: %w", err)
	}
	b.fire = fire

	var err error
	if b.input, err = periphPin(hw.InputPin); err != nil {
		return err
	}
	if err := b.input.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return fmt.Errorf("failed to set pin %d to input: %w", hw.InputPin, err)
	}
	for _, p := range []struct {
		pin    *gpio.PinIO
		number int
	}{{&b.forward, hw.ForwardPin}, {&b.backward, hw.BackwardPin}, {&b.pwm, hw.PWMPin}} {
		if *p.pin, err = periphPin(p.number); err != nil {
			return err
		}
		if err := (*p.pin).Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to set pin %d to output: %w", p.number, err)
		}
	}
	return nil
}

func (b *periphBackend) watch(stop <-chan bool) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if b.input.WaitForEdge(edgePollTimeout) {
			b.fire(b.input.Read() == gpio.High)
		}
	}
}

func (b *periphBackend) readLevel() bool {
	return b.input.Read() == gpio.High
}

func (b *periphBackend) write(out ppm.Output, on bool) error {
	pin := b.forward
	if out == ppm.Backward {
		pin = b.backward
	}
	return pin.Out(gpio.Level(on))
}

func (b *periphBackend) setDuty(compare uint8, freq int) error {
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(compare) / 255)
	if err := b.pwm.PWM(duty, physic.Frequency(freq)*physic.Hertz); err != nil {
		return fmt.Errorf("failed to start pwm: %w", err)
	}
	return nil
}

func (b *periphBackend) close() error {
	var errs []error
	for _, pin := range []gpio.PinIO{b.forward, b.backward, b.pwm} {
		if pin == nil {
			continue
		}
		if err := pin.Out(gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pin := range []gpio.PinIO{b.input, b.forward, b.backward, b.pwm} {
		if pin == nil {
			continue
		}
		if err := pin.Halt(); err != nil {
			slog.Debug("Halting pin failed", "pin", pin.Name(), "error", err)
		}
	}
	return errors.Join(errs...)
}
