package serial

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// FakePort is an in-memory serial device. Lines queued with Feed are returned by Read; everything
// written is captured. An optional Responder answers writes the way a device firmware would.
type FakePort struct {
	mu     sync.Mutex
	cond   *sync.Cond
	read   bytes.Buffer
	closed bool

	// Written captures data written to the port.
	Written bytes.Buffer
	// Responder, when set, is called with each write and its result is queued for reading.
	Responder func(written []byte) []byte
}

// NewFakePort returns an empty FakePort.
func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues data to be read.
func (p *FakePort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read.WriteString(data)
	p.cond.Broadcast()
}

// Read blocks until data is queued or the port is closed.
func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.read.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.read.Len() == 0 {
		return 0, io.EOF
	}
	return p.read.Read(b)
}

// Write records b and queues the Responder's answer, if any.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("serial port closed")
	}
	p.Written.Write(b)
	if p.Responder != nil {
		if resp := p.Responder(b); len(resp) > 0 {
			p.read.Write(resp)
			p.cond.Broadcast()
		}
	}
	return len(b), nil
}

// Close unblocks pending reads. Reads drain queued data before returning io.EOF.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Closed reports whether Close was called.
func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
