package serial

import (
	"fmt"
	"time"
)

// Parity selects the parity bit scheme of a serial line.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

// FlowControl selects the flow control scheme of a serial line.
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowSoftware
	FlowHardware
)

func (f FlowControl) String() string {
	switch f {
	case FlowSoftware:
		return "software"
	case FlowHardware:
		return "hardware"
	default:
		return "none"
	}
}

// PortConfig holds the line parameters of a serial connection.
type PortConfig struct {
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    int
	FlowControl FlowControl
	// ReadTimeout bounds a single read. Zero makes reads return
	// immediately when no data is buffered; reader loops pace
	// themselves regardless.
	ReadTimeout time.Duration
}

// DefaultPortConfig returns the conventional 9600 8N1 configuration
// with a one second read timeout.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		BaudRate:    9600,
		DataBits:    8,
		Parity:      ParityNone,
		StopBits:    1,
		FlowControl: FlowNone,
		ReadTimeout: time.Second,
	}
}

func validBaudRate(baud int) bool { return baud > 0 }

func validDataBits(bits int) bool { return bits >= 6 && bits <= 8 }

func validStopBits(bits int) bool { return bits == 1 || bits == 2 }

func validParity(p Parity) bool { return p >= ParityNone && p <= ParityEven }

func validFlowControl(f FlowControl) bool { return f >= FlowNone && f <= FlowHardware }

func (c *PortConfig) validate() error {
	if !validBaudRate(c.BaudRate) {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if !validDataBits(c.DataBits) {
		return fmt.Errorf("data bits must be between 6 and 8, got %d", c.DataBits)
	}
	if !validStopBits(c.StopBits) {
		return fmt.Errorf("stop bits must be 1 or 2, got %d", c.StopBits)
	}
	if !validParity(c.Parity) {
		return fmt.Errorf("invalid parity %d", int(c.Parity))
	}
	if !validFlowControl(c.FlowControl) {
		return fmt.Errorf("invalid flow control %d", int(c.FlowControl))
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must not be negative, got %v", c.ReadTimeout)
	}
	return nil
}
