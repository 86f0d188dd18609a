package serial

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrorKind is the liveness consequence of a transport error.
type ErrorKind int

const (
	// KindOther covers errors that neither prove the device is gone nor
	// denote a timeout. The operation fails but the session stays open,
	// avoiding false-positive teardown on recoverable errors.
	KindOther ErrorKind = iota
	// KindDisconnected means the device is no longer usable; the holder
	// must discard the transport.
	KindDisconnected
	// KindTransient denotes a timeout or would-block condition. Not an
	// error state: there is simply no data right now.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindDisconnected:
		return "disconnected"
	case KindTransient:
		return "transient"
	default:
		return "other"
	}
}

// Classify maps an error from a transport operation to its ErrorKind.
//
// Device-absent, broken-pipe, connection-aborted, not-connected and
// unexpected-end-of-stream errors all mean the device is gone.
// Permission-denied counts as a disconnect too: on some platforms
// device removal revokes access before the node disappears.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, unix.EAGAIN),
		errors.Is(err, unix.ETIMEDOUT),
		errors.Is(err, os.ErrDeadlineExceeded):
		return KindTransient
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, unix.EIO),
		errors.Is(err, unix.ENXIO),
		errors.Is(err, unix.ENODEV),
		errors.Is(err, unix.ENOENT),
		errors.Is(err, unix.EBADF),
		errors.Is(err, unix.EPIPE),
		errors.Is(err, unix.ECONNABORTED),
		errors.Is(err, unix.ENOTCONN),
		errors.Is(err, os.ErrPermission):
		return KindDisconnected
	default:
		return KindOther
	}
}
