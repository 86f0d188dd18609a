// Package frame splits raw serial byte streams into discrete messages.
//
// A Machine accumulates read chunks and emits framed messages according
// to its current Mode: raw (every chunk is one message), line-delimited,
// or a custom single-byte delimiter. Delimited modes keep the delimiter
// byte in the emitted message; framing is append-then-check, not
// strip-then-emit. The mode can be changed while the machine is in use;
// bytes already accumulated are kept and reinterpreted from the next
// byte on.
package frame

// Kind selects the framing policy of a Mode.
type Kind int

const (
	// Raw emits every nonempty read chunk verbatim as one message.
	Raw Kind = iota
	// Line frames on line-feed bytes.
	Line
	// Delim frames on an arbitrary single byte.
	Delim
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case Line:
		return "line"
	case Delim:
		return "delimiter"
	default:
		return "unknown"
	}
}

// Mode is a framing policy: a Kind plus, for Delim, the delimiter byte.
type Mode struct {
	Kind  Kind
	Delim byte
}

// ModeRaw returns the raw chunk-per-message mode.
func ModeRaw() Mode { return Mode{Kind: Raw} }

// ModeLine returns the line-delimited mode.
func ModeLine() Mode { return Mode{Kind: Line, Delim: '\n'} }

// ModeDelim returns a custom-delimiter mode framing on d.
func ModeDelim(d byte) Mode { return Mode{Kind: Delim, Delim: d} }

// ModeFromInt maps the numeric mode selector used by the manager
// surface: 0 raw, 1 line-delimited, 2 custom delimiter (line-feed until
// changed). Unknown values fall back to raw.
func ModeFromInt(v int) Mode {
	switch v {
	case 1:
		return ModeLine()
	case 2:
		return ModeDelim('\n')
	default:
		return ModeRaw()
	}
}

// delimiter returns the byte the mode frames on. Line always frames on
// line-feed regardless of the Delim field.
func (m Mode) delimiter() byte {
	if m.Kind == Line {
		return '\n'
	}
	return m.Delim
}

// Machine turns a stream of read chunks into framed messages. It is not
// safe for concurrent use; each reader owns exactly one machine.
type Machine struct {
	mode Mode
	acc  []byte
}

// NewMachine returns a machine framing with the given mode.
func NewMachine(mode Mode) *Machine {
	return &Machine{mode: mode}
}

// Mode returns the current framing mode.
func (m *Machine) Mode() Mode { return m.mode }

// SetMode switches the framing policy. Accumulated bytes are kept; the
// new policy applies from the next byte fed.
func (m *Machine) SetMode(mode Mode) { m.mode = mode }

// Pending reports the number of accumulated bytes awaiting a delimiter.
func (m *Machine) Pending() int { return len(m.acc) }

// Feed consumes one read chunk and returns the messages it completed,
// in order. In raw mode the chunk itself is the single message and the
// accumulator is untouched.
func (m *Machine) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	if m.mode.Kind == Raw {
		msg := make([]byte, len(chunk))
		copy(msg, chunk)
		return [][]byte{msg}
	}

	delim := m.mode.delimiter()
	var msgs [][]byte
	for _, b := range chunk {
		m.acc = append(m.acc, b)
		if b == delim {
			msg := make([]byte, len(m.acc))
			copy(msg, m.acc)
			msgs = append(msgs, msg)
			m.acc = m.acc[:0]
		}
	}
	return msgs
}

// Flush emits the accumulator as one message after a read timeout,
// bounding the latency of partial frames. It returns nil when there is
// nothing to flush; raw mode never flushes since every chunk was
// already emitted.
func (m *Machine) Flush() []byte {
	if m.mode.Kind == Raw || len(m.acc) == 0 {
		return nil
	}
	msg := make([]byte, len(m.acc))
	copy(msg, m.acc)
	m.acc = m.acc[:0]
	return msg
}
