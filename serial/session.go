package serial

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Opener acquires the transport on Open. Defaults to TTYOpener.
	Opener Opener
	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger
	// Port preselects the device name; SetPort can change it later.
	Port string
	// PortConfig seeds the line parameters. The zero value means
	// DefaultPortConfig.
	PortConfig PortConfig
}

// Session owns one serial connection and a cached liveness flag.
//
// The cached flag is never ground truth: on several platforms a stale
// handle keeps returning successful zero-length reads instead of
// erroring, so every I/O operation re-probes the transport with a
// non-destructive availability query first and fails fast when the
// device is gone. All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	opener    Opener
	logger    *slog.Logger
	name      string
	cfg       PortConfig
	tr        Transport
	connected bool
}

// NewSession creates an unopened session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Opener == nil {
		cfg.Opener = TTYOpener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PortConfig == (PortConfig{}) {
		cfg.PortConfig = DefaultPortConfig()
	}
	return &Session{
		opener: cfg.Opener,
		logger: cfg.Logger,
		name:   cfg.Port,
		cfg:    cfg.PortConfig,
	}
}

// SetPort selects the device to open. Takes effect on the next Open.
func (s *Session) SetPort(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// SetBaudRate validates and stores the baud rate. An out-of-domain
// value is rejected and the previous value kept.
func (s *Session) SetBaudRate(baud int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validBaudRate(baud) {
		s.logger.Error("invalid baud rate, keeping previous value",
			"baud", baud, "previous", s.cfg.BaudRate)
		return false
	}
	s.cfg.BaudRate = baud
	return true
}

// SetDataBits validates and stores the data bits (6, 7 or 8).
func (s *Session) SetDataBits(bits int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validDataBits(bits) {
		s.logger.Error("data bits must be between 6 and 8, keeping previous value",
			"data_bits", bits, "previous", s.cfg.DataBits)
		return false
	}
	s.cfg.DataBits = bits
	return true
}

// SetParity validates and stores the parity scheme.
func (s *Session) SetParity(parity Parity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validParity(parity) {
		s.logger.Error("invalid parity, keeping previous value",
			"parity", int(parity), "previous", s.cfg.Parity.String())
		return false
	}
	s.cfg.Parity = parity
	return true
}

// SetStopBits validates and stores the stop bits (1 or 2).
func (s *Session) SetStopBits(bits int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validStopBits(bits) {
		s.logger.Error("stop bits must be 1 or 2, keeping previous value",
			"stop_bits", bits, "previous", s.cfg.StopBits)
		return false
	}
	s.cfg.StopBits = bits
	return true
}

// SetFlowControl validates and stores the flow control scheme.
func (s *Session) SetFlowControl(flow FlowControl) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validFlowControl(flow) {
		s.logger.Error("invalid flow control, keeping previous value",
			"flow_control", int(flow), "previous", s.cfg.FlowControl.String())
		return false
	}
	s.cfg.FlowControl = flow
	return true
}

// SetTimeout validates and stores the read timeout.
func (s *Session) SetTimeout(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout < 0 {
		s.logger.Error("read timeout must not be negative, keeping previous value",
			"timeout", timeout, "previous", s.cfg.ReadTimeout)
		return false
	}
	s.cfg.ReadTimeout = timeout
	return true
}

// Config returns a copy of the stored line configuration.
func (s *Session) Config() PortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Open acquires a transport with the stored configuration. Reports
// whether the session is connected afterwards; a failure leaves the
// session empty and is logged, never raised. An already-open session is
// closed first.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.name == "" {
		s.logger.Error("cannot open: port name not set")
		return false
	}
	if s.tr != nil {
		s.teardownLocked()
	}

	tr, err := s.opener.Open(s.name, s.cfg)
	if err != nil {
		s.logger.Error("failed to open port", "port", s.name, "error", err)
		return false
	}
	s.tr = tr
	s.connected = true
	s.logger.Info("port opened", "port", s.name, "baud", s.cfg.BaudRate)
	return true
}

// Close discards the transport. Idempotent; safe on a never-opened
// session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Connected reports the cached liveness flag without touching the
// device. Cheap, but possibly stale: use IsOpen when the answer
// matters.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsOpen actively probes the transport and reports whether the device
// is still usable. A failed probe tears the session down.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeLocked()
}

// Write probes, then writes all bytes and drains the output. A
// disconnect tears the session down; transient and other failures leave
// it open and report false.
func (s *Session) Write(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probeLocked() {
		s.logger.Error("write failed: port not connected", "port", s.name)
		return false
	}
	if _, err := s.tr.Write(data); err != nil {
		s.handleErrorLocked("write", err)
		return false
	}
	if err := s.tr.Flush(); err != nil {
		s.handleErrorLocked("flush", err)
		return false
	}
	return true
}

// WriteString writes the UTF-8 bytes of text.
func (s *Session) WriteString(text string) bool {
	return s.Write([]byte(text))
}

// WriteLine writes text followed by a line-feed.
func (s *Session) WriteLine(text string) bool {
	return s.Write(append([]byte(text), '\n'))
}

// Read returns up to max bytes. A timeout is not an error: the result
// is simply empty and the session stays open. Disconnects tear the
// session down; other errors are logged and return empty.
func (s *Session) Read(max int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 {
		return nil
	}
	if !s.probeLocked() {
		s.logger.Error("read failed: port not connected", "port", s.name)
		return nil
	}

	buf := make([]byte, max)
	n, err := s.tr.Read(buf)
	if err != nil {
		switch Classify(err) {
		case KindTransient:
			// no data right now
		case KindDisconnected:
			s.disconnectLocked(err)
		default:
			s.logger.Error("failed to read from port", "port", s.name, "error", err)
		}
		return nil
	}
	return buf[:n]
}

// ReadString reads up to max bytes and decodes them as UTF-8. Invalid
// encoding is logged and yields an empty string; the device stays
// connected.
func (s *Session) ReadString(max int) string {
	data := s.Read(max)
	if len(data) == 0 {
		return ""
	}
	if !utf8.Valid(data) {
		s.logger.Error("discarding invalid UTF-8 from port", "port", s.name, "bytes", len(data))
		return ""
	}
	return string(data)
}

// ReadLine accumulates bytes until a line-feed, stripping a preceding
// carriage-return. A timeout returns the partial line collected so far;
// a non-empty partial line is always returned rather than discarded.
func (s *Session) ReadLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probeLocked() {
		s.logger.Error("readline failed: port not connected", "port", s.name)
		return ""
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := s.tr.Read(buf)
		if err != nil {
			kind := Classify(err)
			switch kind {
			case KindTransient:
				// timeout: the partial line is the result
			case KindDisconnected:
				s.disconnectLocked(err)
			default:
				s.logger.Error("failed to read line", "port", s.name, "error", err)
			}
			if len(line) == 0 && kind != KindTransient {
				return ""
			}
			return string(line)
		}
		if n == 0 {
			// bounded read expired with no data
			return string(line)
		}
		switch buf[0] {
		case '\n':
			return string(line)
		case '\r':
			// stripped
		default:
			line = append(line, buf[0])
		}
	}
}

// BytesAvailable reports how many received bytes are waiting. The query
// is issued directly (it is itself the probe, avoiding a doubled system
// call); an error is classified and only a disconnect closes the
// session, anything else is inconclusive and reports zero.
func (s *Session) BytesAvailable() uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tr == nil {
		return 0
	}
	n, err := s.tr.BytesAvailable()
	if err != nil {
		if Classify(err) == KindDisconnected {
			s.disconnectLocked(err)
		} else {
			s.logger.Error("failed to query available bytes", "port", s.name, "error", err)
		}
		return 0
	}
	if n < 0 {
		n = 0
	}
	return uint(n)
}

// ClearBuffer discards all buffered input and output.
func (s *Session) ClearBuffer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probeLocked() {
		s.logger.Error("clear failed: port not connected", "port", s.name)
		return false
	}
	if err := s.tr.Clear(); err != nil {
		s.handleErrorLocked("clear buffer", err)
		return false
	}
	return true
}

// probeLocked refreshes the cached liveness flag with a non-destructive
// availability query. Only a disconnect classification tears the
// session down; other query errors are inconclusive.
func (s *Session) probeLocked() bool {
	if s.tr == nil {
		return false
	}
	if _, err := s.tr.BytesAvailable(); err != nil {
		if Classify(err) == KindDisconnected {
			s.disconnectLocked(err)
			return false
		}
	}
	return true
}

func (s *Session) handleErrorLocked(op string, err error) {
	if Classify(err) == KindDisconnected {
		s.disconnectLocked(err)
		return
	}
	s.logger.Error("serial operation failed", "op", op, "port", s.name, "error", err)
}

func (s *Session) disconnectLocked(err error) {
	s.logger.Warn("device disconnected, closing port", "port", s.name, "error", err)
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.tr != nil {
		s.tr.Close()
		s.tr = nil
	}
	s.connected = false
}
