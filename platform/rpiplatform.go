package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
	"lautenbacher.net/ppmswitch/util"
)

type RaspberryPiPlatform struct {
	*AbstractPlatform
	backend     gpioBackend
	pulseViewer *PulseViewer
	viewerWg    sync.WaitGroup
	edgeWg      sync.WaitGroup
	started     bool
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	return newRaspberryPiPlatform(conf, newGPIOBackend(conf.Hardware.GPIOLibrary))
}

func newRaspberryPiPlatform(conf *config.Config, backend gpioBackend) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{backend: backend}
	inst.AbstractPlatform = newAbstractPlatform(conf, backend.write)
	return inst
}

// SetPulseViewer attaches an optional TUI viewer for the measured pulses.
func (s *RaspberryPiPlatform) SetPulseViewer(v *PulseViewer) {
	s.pulseViewer = v
}

func (s *RaspberryPiPlatform) Start() error {
	hw := s.config.Hardware
	slog.Info("Initialise GPIO...", "library", hw.GPIOLibrary, "input", hw.InputPin,
		"forward", hw.ForwardPin, "backward", hw.BackwardPin, "pwm", hw.PWMPin)
	if err := s.backend.open(hw, s.fireEdge); err != nil {
		if cerr := s.backend.close(); cerr != nil {
			slog.Error("Error releasing GPIO", "error", cerr)
		}
		return err
	}
	s.started = true

	if err := s.resetOutputs(); err != nil {
		return fmt.Errorf("failed to reset outputs: %w", err)
	}
	if err := s.SetDuty(s.config.Switch.PWMCompare); err != nil {
		return err
	}

	if s.pulseViewer != nil {
		s.viewerWg.Add(1)
		go s.pulseViewer.Start(s.stopChan, &s.viewerWg)
	}

	s.edgeWg.Add(1)
	go func() {
		defer s.edgeWg.Done()
		if !waitSettled(s.backend.readLevel, s.config.Switch.SettleDelay, s.stopChan) {
			slog.Info("Stopped while waiting for the input to settle")
			return
		}
		close(s.readyChan)
		s.backend.watch(s.stopChan)
		slog.Info("Ending edge watcher go-routine (RPi)")
	}()
	return nil
}

func (s *RaspberryPiPlatform) SetDuty(compare uint8) error {
	if err := s.backend.setDuty(compare, s.config.Hardware.PWMFrequency); err != nil {
		return err
	}
	s.duty.Store(uint32(compare))
	slog.Info("PWM running", "compare", compare, "frequency", s.config.Hardware.PWMFrequency)
	return nil
}

func (s *RaspberryPiPlatform) ReadLevel() bool {
	return s.backend.readLevel()
}

func (s *RaspberryPiPlatform) Watch(status *util.Latest[ppm.Status]) {
	if s.pulseViewer == nil {
		return
	}
	s.watch(status, s.pulseViewer.Update)
}

func (s *RaspberryPiPlatform) Stop() {
	// outputs go low before writes are refused
	if s.started {
		if err := s.resetOutputs(); err != nil {
			slog.Error("Error resetting outputs", "error", err)
		}
	}
	s.setInShutdown()

	s.edgeWg.Wait()
	s.watchWg.Wait()
	s.viewerWg.Wait()

	if s.started {
		if err := s.backend.close(); err != nil {
			slog.Error("Error closing GPIO", "error", err)
		}
		s.started = false
	}
}
