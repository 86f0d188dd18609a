package serial

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// TTYOpener opens real serial devices through the Linux terminal layer.
// The device is put into raw mode and configured from the given
// PortConfig before the Transport is returned.
type TTYOpener struct{}

// Open implements Opener.
func (TTYOpener) Open(name string, cfg PortConfig) (Transport, error) {
	if name == "" {
		return nil, ErrNoPortName
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	t := &ttyTransport{fd: fd, name: name}
	if err := t.configure(cfg); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}

	// Config is done; reads block under VMIN/VTIME control from here on.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}

	return t, nil
}

// ttyTransport is the production Transport over a raw file descriptor.
// The mutex guards termios updates and close; reads and writes go
// straight to the descriptor, callers serialize them externally.
type ttyTransport struct {
	mu     sync.Mutex
	fd     int
	name   string
	closed bool
}

var baudCodes = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

func (t *ttyTransport) configure(cfg PortConfig) error {
	tio, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag |= unix.CREAD | unix.CLOCAL

	applyBaud := func(code uint32) {
		tio.Cflag &^= unix.CBAUD
		tio.Cflag |= code
		tio.Ispeed = code
		tio.Ospeed = code
	}
	code, ok := baudCodes[cfg.BaudRate]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}
	applyBaud(code)
	applyDataBits(tio, cfg.DataBits)
	applyParity(tio, cfg.Parity)
	applyStopBits(tio, cfg.StopBits)
	applyFlowControl(tio, cfg.FlowControl)
	applyReadTimeout(tio, cfg.ReadTimeout)

	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

func applyDataBits(tio *unix.Termios, bits int) {
	tio.Cflag &^= unix.CSIZE
	switch bits {
	case 6:
		tio.Cflag |= unix.CS6
	case 7:
		tio.Cflag |= unix.CS7
	default:
		tio.Cflag |= unix.CS8
	}
}

func applyParity(tio *unix.Termios, parity Parity) {
	tio.Cflag &^= unix.PARENB | unix.PARODD
	switch parity {
	case ParityOdd:
		tio.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		tio.Cflag |= unix.PARENB
	}
}

func applyStopBits(tio *unix.Termios, bits int) {
	if bits == 2 {
		tio.Cflag |= unix.CSTOPB
	} else {
		tio.Cflag &^= unix.CSTOPB
	}
}

func applyFlowControl(tio *unix.Termios, flow FlowControl) {
	tio.Cflag &^= unix.CRTSCTS
	tio.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	switch flow {
	case FlowHardware:
		tio.Cflag |= unix.CRTSCTS
	case FlowSoftware:
		tio.Iflag |= unix.IXON | unix.IXOFF
	}
}

// applyReadTimeout maps the timeout onto VMIN=0/VTIME so a read returns
// zero bytes once the timeout expires. VTIME counts deciseconds; small
// nonzero timeouts round up to one tick, and the field caps at 25.5s.
func applyReadTimeout(tio *unix.Termios, timeout time.Duration) {
	ds := int64(timeout / (100 * time.Millisecond))
	if timeout > 0 && ds == 0 {
		ds = 1
	}
	if ds > 255 {
		ds = 255
	}
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = uint8(ds)
}

func (t *ttyTransport) updateTermios(fn func(*unix.Termios)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	tio, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	fn(tio)
	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Read performs one bounded read. A return of (0, nil) means the
// configured timeout expired with no data.
func (t *ttyTransport) Read(p []byte) (int, error) {
	n, err := unix.Read(t.fd, p)
	if n < 0 {
		n = 0
	}
	if err != nil {
		return n, fmt.Errorf("read %s: %w", t.name, err)
	}
	return n, nil
}

func (t *ttyTransport) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(t.fd, p[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, fmt.Errorf("write %s: %w", t.name, err)
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (t *ttyTransport) Flush() error {
	// tcdrain(3)
	if err := unix.IoctlSetInt(t.fd, unix.TCSBRK, 1); err != nil {
		return fmt.Errorf("drain %s: %w", t.name, err)
	}
	return nil
}

func (t *ttyTransport) BytesAvailable() (int, error) {
	n, err := unix.IoctlGetInt(t.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("bytes available %s: %w", t.name, err)
	}
	return n, nil
}

func (t *ttyTransport) Clear() error {
	if err := unix.IoctlSetInt(t.fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return fmt.Errorf("clear %s: %w", t.name, err)
	}
	return nil
}

func (t *ttyTransport) SetBaudRate(baud int) error {
	code, ok := baudCodes[baud]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	return t.updateTermios(func(tio *unix.Termios) {
		tio.Cflag &^= unix.CBAUD
		tio.Cflag |= code
		tio.Ispeed = code
		tio.Ospeed = code
	})
}

func (t *ttyTransport) SetDataBits(bits int) error {
	if !validDataBits(bits) {
		return fmt.Errorf("data bits must be between 6 and 8, got %d", bits)
	}
	return t.updateTermios(func(tio *unix.Termios) { applyDataBits(tio, bits) })
}

func (t *ttyTransport) SetParity(parity Parity) error {
	if !validParity(parity) {
		return fmt.Errorf("invalid parity %d", int(parity))
	}
	return t.updateTermios(func(tio *unix.Termios) { applyParity(tio, parity) })
}

func (t *ttyTransport) SetStopBits(bits int) error {
	if !validStopBits(bits) {
		return fmt.Errorf("stop bits must be 1 or 2, got %d", bits)
	}
	return t.updateTermios(func(tio *unix.Termios) { applyStopBits(tio, bits) })
}

func (t *ttyTransport) SetFlowControl(flow FlowControl) error {
	if !validFlowControl(flow) {
		return fmt.Errorf("invalid flow control %d", int(flow))
	}
	return t.updateTermios(func(tio *unix.Termios) { applyFlowControl(tio, flow) })
}

func (t *ttyTransport) SetReadTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return fmt.Errorf("read timeout must not be negative, got %v", timeout)
	}
	return t.updateTermios(func(tio *unix.Termios) { applyReadTimeout(tio, timeout) })
}

func (t *ttyTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("close %s: %w", t.name, err)
	}
	return nil
}
