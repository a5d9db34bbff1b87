package diag

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
	"lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

const serialQueueSize = 64

// SerialObserver writes one text line per event to a serial port. Lines
// are queued and written by a separate goroutine; when the queue is full
// the line is dropped.
type SerialObserver struct {
	w       io.WriteCloser
	lines   chan string
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewSerialObserver opens the configured port.
func NewSerialObserver(cfg config.SerialConfig) (*SerialObserver, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("can't open serial port %s: %w", cfg.Port, err)
	}
	slog.Info("Serial diagnostics enabled", "port", cfg.Port, "baud", cfg.Baud)
	return newSerialObserver(port), nil
}

func newSerialObserver(w io.WriteCloser) *SerialObserver {
	o := &SerialObserver{
		w:     w,
		lines: make(chan string, serialQueueSize),
	}
	o.wg.Add(1)
	go o.writer()
	return o
}

func (o *SerialObserver) writer() {
	defer o.wg.Done()
	for line := range o.lines {
		if _, err := io.WriteString(o.w, line); err != nil {
			slog.Error("Serial write failed", "error", err)
		}
	}
}

func (o *SerialObserver) enqueue(format string, args ...interface{}) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.lines <- fmt.Sprintf(format, args...) + "\r\n":
	default:
		o.dropped.Add(1)
	}
}

func (o *SerialObserver) SampleMeasured(sample ppm.PulseSample) {
	o.enqueue("S %d", sample)
}

func (o *SerialObserver) Calibrated(th ppm.Thresholds) {
	o.enqueue("C n=%d f=%d b=%d", th.Neutral, th.Forward, th.Backward)
}

func (o *SerialObserver) Transition(tr ppm.Transition) {
	o.enqueue("T %s s=%d %s->%s fwd=%d bwd=%d", tr.Action, tr.Sample, tr.From, tr.To, b2i(tr.Forward), b2i(tr.Backward))
}

// Dropped returns the number of lines lost to a full queue.
func (o *SerialObserver) Dropped() uint64 {
	return o.dropped.Load()
}

// Close writes the queued lines and closes the port.
func (o *SerialObserver) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.lines)
	o.mu.Unlock()

	o.wg.Wait()
	return o.w.Close()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
