package platform

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
	u "lautenbacher.net/ppmswitch/util"
)

var ErrShuttingDown = errors.New("platform is shutting down")

const (
	edgeNone int32 = iota - 1
	edgeFalling
	edgeRising
)

// AbstractPlatform holds the state shared by all platforms: the registered
// edge handler, the output levels and the shutdown guard. Concrete
// platforms hand in writeFunc, which puts an output level on the wire.
type AbstractPlatform struct {
	config         *c.Config
	writeFunc      func(out ppm.Output, on bool) error
	handlerMu      sync.RWMutex
	edgeHandler    func(rising bool)
	lastEdge       atomic.Int32
	forward        atomic.Bool
	backward       atomic.Bool
	duty           atomic.Uint32
	readyChan      chan bool
	stopChan       chan bool
	stopOnce       sync.Once
	watchWg        sync.WaitGroup
	shutdownMutex  sync.RWMutex
	isShuttingDown bool
}

func newAbstractPlatform(conf *c.Config, writeFunc func(ppm.Output, bool) error) *AbstractPlatform {
	s := &AbstractPlatform{
		config:    conf,
		writeFunc: writeFunc,
		readyChan: make(chan bool),
		stopChan:  make(chan bool),
	}
	s.lastEdge.Store(edgeNone)
	return s
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) SetEdgeHandler(handler func(rising bool)) {
	s.handlerMu.Lock()
	s.edgeHandler = handler
	s.handlerMu.Unlock()
}

// fireEdge forwards a transition of the input line to the edge handler.
// After a rising edge only a falling one is passed on and vice versa.
func (s *AbstractPlatform) fireEdge(rising bool) {
	edge := edgeFalling
	if rising {
		edge = edgeRising
	}
	if s.lastEdge.Swap(edge) == edge {
		return
	}
	s.handlerMu.RLock()
	handler := s.edgeHandler
	s.handlerMu.RUnlock()
	if handler != nil {
		handler(rising)
	}
}

func (s *AbstractPlatform) SetForward(on bool) error {
	return s.setOutput(ppm.Forward, on)
}

func (s *AbstractPlatform) SetBackward(on bool) error {
	return s.setOutput(ppm.Backward, on)
}

func (s *AbstractPlatform) setOutput(out ppm.Output, on bool) error {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	if s.isShuttingDown {
		return ErrShuttingDown
	}
	if err := s.writeFunc(out, on); err != nil {
		return err
	}
	if out == ppm.Forward {
		s.forward.Store(on)
	} else {
		s.backward.Store(on)
	}
	return nil
}

// Outputs returns the levels last written to the output lines.
func (s *AbstractPlatform) Outputs() (forward, backward bool) {
	return s.forward.Load(), s.backward.Load()
}

// Duty returns the PWM compare value last set.
func (s *AbstractPlatform) Duty() uint8 {
	return uint8(s.duty.Load())
}

// resetOutputs drives both outputs low.
func (s *AbstractPlatform) resetOutputs() error {
	return errors.Join(s.SetForward(false), s.SetBackward(false))
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// watch calls render for every status snapshot until the platform stops.
func (s *AbstractPlatform) watch(status *u.Latest[ppm.Status], render func(ppm.Status)) {
	s.watchWg.Add(1)
	go func() {
		defer s.watchWg.Done()
		render(status.Value())
		for {
			select {
			case <-s.stopChan:
				slog.Info("Ending status watcher go-routine...")
				return
			case <-status.Channel():
				render(status.Value())
			}
		}
	}()
}

// waitSettled blocks for delay and then until readLevel reports a low
// input line, so sampling never starts in the middle of a pulse. It
// returns false if stop was closed first.
func waitSettled(readLevel func() bool, delay time.Duration, stop <-chan bool) bool {
	slog.Info("Waiting for the input line to settle", "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
	}
	for readLevel() {
		select {
		case <-stop:
			return false
		default:
			runtime.Gosched()
		}
	}
	return true
}
