package serial

import "errors"

var (
	// ErrNoPortName is returned when a transport open is attempted
	// without a device name configured.
	//
	// This indicates a configuration error; the session is left empty.
	ErrNoPortName = errors.New("port name not set")

	// ErrTransportClosed is returned when a transport is used after
	// Close.
	ErrTransportClosed = errors.New("transport closed")
)
