// Package serialtest provides a scripted in-memory serial port for tests.
package serialtest

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	serialproto "digit-service/internal/protocol/serial"
)

// ExchangeBytes is the size of one START command plus a full sample
const ExchangeBytes = 5 + 784

// ErrClosed is returned by I/O on a closed fake port
var ErrClosed = errors.New("fake port closed")

// FakePort is an in-memory Port. Data queued with Feed is readable at once;
// data queued with Reply becomes readable after ExchangeBytes have been written
// since the last input reset, which is how the device answers a sample.
type FakePort struct {
	mutex sync.Mutex

	incoming chan []byte
	leftover []byte
	closeCh  chan struct{}
	closed   bool
	ended    bool

	readTimeout time.Duration
	written     []byte
	sinceReset  int
	replies     []string
	replyEOF    bool

	reads        int
	writes       int
	drains       int
	inputResets  int
	outputResets int

	writeErr  error
	readErr   error
	writeGate chan struct{}
}

// NewFakePort creates an empty fake port
func NewFakePort() *FakePort {
	return &FakePort{
		incoming: make(chan []byte, 1024),
		closeCh:  make(chan struct{}),
	}
}

// Opener returns an opener that hands out this port
func (f *FakePort) Opener() serialproto.Opener {
	return func(name string, mode *serial.Mode) (serialproto.Port, error) {
		return f, nil
	}
}

// FailingOpener returns an opener that always fails with err
func FailingOpener(err error) serialproto.Opener {
	return func(name string, mode *serial.Mode) (serialproto.Port, error) {
		return nil, err
	}
}

// Feed makes chunks readable immediately
func (f *FakePort) Feed(chunks ...string) {
	for _, chunk := range chunks {
		f.incoming <- []byte(chunk)
	}
}

// Reply arms chunks to be delivered once a full exchange has been written.
// With eof set the stream ends after the chunks.
func (f *FakePort) Reply(eof bool, chunks ...string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.replies = append(f.replies, chunks...)
	f.replyEOF = eof
}

// FailWrites makes subsequent writes return err
func (f *FakePort) FailWrites(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.writeErr = err
}

// BlockWrites makes subsequent writes hang until the returned release
// function is called or the port is closed
func (f *FakePort) BlockWrites() (release func()) {
	gate := make(chan struct{})
	f.mutex.Lock()
	f.writeGate = gate
	f.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mutex.Lock()
			if f.writeGate == gate {
				f.writeGate = nil
			}
			f.mutex.Unlock()
			close(gate)
		})
	}
}

// FailReads makes subsequent reads return err
func (f *FakePort) FailReads(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.readErr = err
}

// Read implements io.Reader with the configured read timeout
func (f *FakePort) Read(p []byte) (int, error) {
	f.mutex.Lock()
	f.reads++
	if f.closed {
		f.mutex.Unlock()
		return 0, ErrClosed
	}
	if f.readErr != nil {
		err := f.readErr
		f.mutex.Unlock()
		return 0, err
	}
	if len(f.leftover) > 0 {
		n := copy(p, f.leftover)
		f.leftover = f.leftover[n:]
		f.mutex.Unlock()
		return n, nil
	}
	timeout := f.readTimeout
	f.mutex.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-f.incoming:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, data)
		if n < len(data) {
			f.mutex.Lock()
			f.leftover = append(f.leftover, data[n:]...)
			f.mutex.Unlock()
		}
		return n, nil
	case <-f.closeCh:
		return 0, ErrClosed
	case <-expired:
		return 0, nil
	}
}

// Write records data and releases armed replies after a full exchange
func (f *FakePort) Write(p []byte) (int, error) {
	f.mutex.Lock()
	gate := f.writeGate
	f.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-f.closeCh:
		}
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.writes++
	if f.closed {
		return 0, ErrClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}

	f.written = append(f.written, p...)
	f.sinceReset += len(p)

	if f.sinceReset >= ExchangeBytes && (len(f.replies) > 0 || f.replyEOF) {
		for _, reply := range f.replies {
			f.incoming <- []byte(reply)
		}
		f.replies = nil
		if f.replyEOF && !f.ended {
			f.ended = true
			close(f.incoming)
		}
		f.replyEOF = false
	}

	return len(p), nil
}

// Close unblocks pending reads
func (f *FakePort) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

// SetReadTimeout sets the per-read timeout
func (f *FakePort) SetReadTimeout(t time.Duration) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.readTimeout = t
	return nil
}

// ResetInputBuffer discards data that is readable now
func (f *FakePort) ResetInputBuffer() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.inputResets++
	f.leftover = nil
	f.sinceReset = 0
	if f.ended {
		return nil
	}
	for {
		select {
		case <-f.incoming:
		default:
			return nil
		}
	}
}

// ResetOutputBuffer counts output resets
func (f *FakePort) ResetOutputBuffer() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.outputResets++
	return nil
}

// Drain counts flushes
func (f *FakePort) Drain() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.drains++
	return nil
}

// Written returns a copy of everything written so far
func (f *FakePort) Written() []byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]byte(nil), f.written...)
}

// Reads returns the number of Read calls
func (f *FakePort) Reads() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.reads
}

// Writes returns the number of Write calls
func (f *FakePort) Writes() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.writes
}

// Drains returns the number of flushes
func (f *FakePort) Drains() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.drains
}

// InputResets returns the number of input buffer resets
func (f *FakePort) InputResets() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.inputResets
}

// IsClosed reports whether Close was called
func (f *FakePort) IsClosed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.closed
}
