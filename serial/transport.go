package serial

import (
	"io"
	"time"
)

//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=mock_transport.go -package=serial

// Transport represents one established serial connection.
//
// A Transport is assumed to be already open and configured. It provides
// the low-level capabilities the session and manager layers build on:
// bounded reads, writes, output draining, a non-destructive availability
// query, buffer clearing, and independently fallible reconfiguration of
// each line parameter. Typical implementations are OS serial devices or
// scripted fakes used for testing.
type Transport interface {
	io.ReadWriteCloser

	// Flush blocks until all written bytes have been handed to the
	// device.
	Flush() error

	// BytesAvailable reports the number of received bytes not yet read.
	// It doubles as the liveness probe: it touches the device without
	// consuming data, so an error here is the most reliable disconnect
	// signal on platforms where stale handles keep returning successful
	// zero-length reads.
	BytesAvailable() (int, error)

	// Clear discards all buffered input and output.
	Clear() error

	SetBaudRate(baud int) error
	SetDataBits(bits int) error
	SetParity(parity Parity) error
	SetStopBits(bits int) error
	SetFlowControl(flow FlowControl) error
	SetReadTimeout(timeout time.Duration) error
}

// Opener acquires a Transport to a named serial device.
//
// Opener abstracts how the connection is created (a real TTY, a pty in
// tests, or a mock) and is used during session or manager open only.
// Once a Transport is obtained, the Opener is no longer needed.
type Opener interface {
	// Open creates and returns a connected, configured Transport.
	// It returns an error if the device cannot be acquired; it never
	// returns a partially configured transport.
	Open(name string, cfg PortConfig) (Transport, error)
}
