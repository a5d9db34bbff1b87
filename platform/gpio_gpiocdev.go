package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

// gpiocdevBackend uses the GPIO character device. Edges arrive on the
// event handler goroutine of the library, the PWM line is toggled in
// software.
type gpiocdevBackend struct {
	input    *gpiocdev.Line
	forward  *gpiocdev.Line
	backward *gpiocdev.Line
	pwm      *softPWM
	fire     func(rising bool)
	enabled  chan struct{}
	once     sync.Once
}

func (b *gpiocdevBackend) open(hw c.HardwareConfig, fire func(bool)) error {
	b.fire = fire
	b.enabled = make(chan struct{})

	var err error
	b.input, err = gpiocdev.RequestLine(hw.Chip, hw.InputPin,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(b.handleEvent))
	if err != nil {
		return fmt.Errorf("failed to request input line %d: %w", hw.InputPin, err)
	}
	if b.forward, err = gpiocdev.RequestLine(hw.Chip, hw.ForwardPin, gpiocdev.AsOutput(0)); err != nil {
		return fmt.Errorf("failed to request forward line %d: %w", hw.ForwardPin, err)
	}
	if b.backward, err = gpiocdev.RequestLine(hw.Chip, hw.BackwardPin, gpiocdev.AsOutput(0)); err != nil {
		return fmt.Errorf("failed to request backward line %d: %w", hw.BackwardPin, err)
	}
	pwmLine, err := gpiocdev.RequestLine(hw.Chip, hw.PWMPin, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("failed to request pwm line %d: %w", hw.PWMPin, err)
	}
	b.pwm = newSoftPWM(pwmLine)
	return nil
}

// handleEvent drops events until watch has been called.
func (b *gpiocdevBackend) handleEvent(evt gpiocdev.LineEvent) {
	select {
	case <-b.enabled:
	default:
		return
	}
	b.fire(evt.Type == gpiocdev.LineEventRisingEdge)
}

func (b *gpiocdevBackend) watch(stop <-chan bool) {
	b.once.Do(func() { close(b.enabled) })
	<-stop
}

func (b *gpiocdevBackend) readLevel() bool {
	v, err := b.input.Value()
	return err == nil && v == 1
}

func (b *gpiocdevBackend) write(out ppm.Output, on bool) error {
	line := b.forward
	if out == ppm.Backward {
		line = b.backward
	}
	v := 0
	if on {
		v = 1
	}
	return line.SetValue(v)
}

func (b *gpiocdevBackend) setDuty(compare uint8, freq int) error {
	b.pwm.set(compare, freq)
	return nil
}

func (b *gpiocdevBackend) close() error {
	var errs []error
	if b.pwm != nil {
		errs = append(errs, b.pwm.stop())
	}
	for _, line := range []*gpiocdev.Line{b.forward, b.backward} {
		if line == nil {
			continue
		}
		errs = append(errs, line.SetValue(0), line.Close())
	}
	if b.input != nil {
		errs = append(errs, b.input.Close())
	}
	return errors.Join(errs...)
}

// pwmLine is the part of *gpiocdev.Line the software PWM drives.
type pwmLine interface {
	SetValue(value int) error
	Close() error
}

// softPWM toggles a line with sleep timed high and low phases. Sleep
// granularity limits it to low frequencies, see config.MaxSoftPWMFrequency.
type softPWM struct {
	line     pwmLine
	failures atomic.Uint64
	mu       sync.Mutex
	highTime time.Duration
	lowTime  time.Duration
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newSoftPWM(line pwmLine) *softPWM {
	return &softPWM{line: line, stopChan: make(chan struct{})}
}

func (p *softPWM) set(compare uint8, freq int) {
	p.mu.Lock()
	p.highTime, p.lowTime = pwmPhases(compare, freq)
	start := !p.started
	p.started = true
	p.mu.Unlock()

	if start {
		p.wg.Add(1)
		go p.run()
	}
}

// pwmPhases splits one period of freq Hz into high and low time for a
// duty of compare/255.
func pwmPhases(compare uint8, freq int) (time.Duration, time.Duration) {
	if freq <= 0 {
		return 0, 0
	}
	period := time.Second / time.Duration(freq)
	high := period * time.Duration(compare) / 255
	return high, period - high
}

func (p *softPWM) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}
		p.mu.Lock()
		high, low := p.highTime, p.lowTime
		p.mu.Unlock()

		if high > 0 {
			p.setValue(1)
			time.Sleep(high)
		}
		if low > 0 {
			p.setValue(0)
			time.Sleep(low)
		}
		if high == 0 && low == 0 {
			time.Sleep(10 * time.Microsecond)
		}
	}
}

// setValue logs only the first failing write, the loop runs at PWM rate.
func (p *softPWM) setValue(v int) {
	if err := p.line.SetValue(v); err != nil {
		if p.failures.Add(1) == 1 {
			slog.Error("Software PWM can't drive line", "error", err)
		}
	}
}

func (p *softPWM) stop() error {
	close(p.stopChan)
	p.wg.Wait()
	var errs []error
	if n := p.failures.Load(); n > 0 {
		errs = append(errs, fmt.Errorf("software PWM: %d failed writes", n))
	}
	if err := p.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("software PWM: can't drive line low: %w", err))
	}
	errs = append(errs, p.line.Close())
	return errors.Join(errs...)
}
