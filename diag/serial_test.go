package diag

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/ppmswitch/ppm"
)

type bufferPort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	block  chan struct{}
}

func (p *bufferPort) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *bufferPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialObserver_Lines(t *testing.T) {
	port := &bufferPort{}
	o := newSerialObserver(port)

	o.SampleMeasured(1500)
	o.Calibrated(ppm.Thresholds{Neutral: 1500, Forward: 1700, Backward: 1300})
	o.Transition(ppm.Transition{Sample: 1250, Action: ppm.ToggleBackward, From: ppm.Armed, To: ppm.Engaged, Backward: true})
	require.NoError(t, o.Close())

	assert.True(t, port.closed)
	assert.Equal(t,
		"S 1500\r\n"+
			"C n=1500 f=1700 b=1300\r\n"+
			"T toggle-backward s=1250 armed->engaged fwd=0 bwd=1\r\n",
		port.buf.String())
}

func TestSerialObserver_DropsWhenFull(t *testing.T) {
	port := &bufferPort{block: make(chan struct{})}
	o := newSerialObserver(port)

	// one line is held by the blocked writer, the queue takes the rest
	for i := 0; i < serialQueueSize+10; i++ {
		o.SampleMeasured(ppm.PulseSample(i))
	}
	assert.GreaterOrEqual(t, o.Dropped(), uint64(9))

	close(port.block)
	require.NoError(t, o.Close())
}

func TestSerialObserver_IgnoresEventsAfterClose(t *testing.T) {
	o := newSerialObserver(&bufferPort{})
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	assert.NotPanics(t, func() { o.SampleMeasured(1500) })
}

type failingCloser struct{ bufferPort }

func (f *failingCloser) Close() error { return errors.New("port gone") }

func TestCloseAll(t *testing.T) {
	ok := newSerialObserver(&bufferPort{})
	bad := newSerialObserver(&failingCloser{})

	err := CloseAll([]Sink{ok, bad})
	assert.EqualError(t, err, "port gone")
}
