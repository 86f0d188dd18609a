package serial

import (
	"io"
	"sync"
	"time"
)

// TestTransport is a scripted Transport backed by a channel of read
// steps. A read blocks until a chunk or error is queued, like a real
// serial port would, and returns zero bytes after ReadTimeout to mimic
// a bounded read expiring. Exported for use in tests.
type TestTransport struct {
	// ReadTimeout is the simulated bounded-read expiry.
	ReadTimeout time.Duration

	mu       sync.Mutex
	steps    chan readStep
	closed   bool
	written  [][]byte
	avail    int
	availErr error
}

type readStep struct {
	data []byte
	err  error
}

// NewTestTransport creates a scripted transport with a short simulated
// read timeout.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		ReadTimeout: 5 * time.Millisecond,
		steps:       make(chan readStep, 64),
	}
}

// QueueRead schedules data to be returned by a future Read.
func (t *TestTransport) QueueRead(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.steps <- readStep{data: []byte(data)}
	}
}

// QueueError schedules an error to be returned by a future Read.
func (t *TestTransport) QueueError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.steps <- readStep{err: err}
	}
}

// SetAvailable scripts the BytesAvailable result.
func (t *TestTransport) SetAvailable(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.avail, t.availErr = n, err
}

// Written returns every buffer passed to Write, in order.
func (t *TestTransport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// Closed reports whether Close has been called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *TestTransport) Read(p []byte) (int, error) {
	timer := time.NewTimer(t.ReadTimeout)
	defer timer.Stop()
	select {
	case step, ok := <-t.steps:
		if !ok {
			return 0, io.EOF
		}
		if step.err != nil {
			return 0, step.err
		}
		return copy(p, step.data), nil
	case <-timer.C:
		return 0, nil
	}
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.written = append(t.written, cp)
	return len(p), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.steps)
	return nil
}

func (t *TestTransport) Flush() error { return nil }

func (t *TestTransport) BytesAvailable() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	return t.avail, t.availErr
}

func (t *TestTransport) Clear() error { return nil }

func (t *TestTransport) SetBaudRate(int) error              { return nil }
func (t *TestTransport) SetDataBits(int) error              { return nil }
func (t *TestTransport) SetParity(Parity) error             { return nil }
func (t *TestTransport) SetStopBits(int) error              { return nil }
func (t *TestTransport) SetFlowControl(FlowControl) error   { return nil }
func (t *TestTransport) SetReadTimeout(time.Duration) error { return nil }
