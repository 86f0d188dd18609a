package serial

import (
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/SujithChristopher/gdserial/frame"
)

const (
	// eventQueueSize bounds the shared event channel. A reader whose
	// events are not being polled blocks once the queue fills, rather
	// than dropping messages.
	eventQueueSize = 256

	// readerSleep paces the reader loop between bounded reads,
	// independent of the device timeout, so a zero-timeout device does
	// not spin a CPU.
	readerSleep = 5 * time.Millisecond
)

// Event is one framed message or a disconnect notice from a managed
// port. Data is nil on a disconnect.
type Event struct {
	Port         string `json:"port"`
	Data         []byte `json:"data,omitempty"`
	Disconnected bool   `json:"disconnected,omitempty"`

	// gen ties the event to one incarnation of the port, so a
	// disconnect drained after a reopen is recognized as stale.
	gen uint64
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Opener acquires transports for OpenPort. Defaults to TTYOpener.
	Opener Opener
	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger
	// OnData, when set, is invoked for every data event drained by
	// PollEvents, after it is appended to the returned list.
	OnData func(port string, data []byte)
	// OnDisconnect, when set, is invoked for every disconnect event
	// drained by PollEvents, before the port's resources are reclaimed.
	OnDisconnect func(port string)
}

// Manager runs one background reader per open device and funnels all
// framed messages into a single ordered event queue drained by
// PollEvents. The transport of each port is shared between its reader
// and the foreground operations (WritePort, ReconfigurePort) under a
// per-port mutex; no holder keeps the mutex across more than one
// transport call.
type Manager struct {
	opener       Opener
	logger       *slog.Logger
	onData       func(string, []byte)
	onDisconnect func(string)

	// openMu serializes OpenPort's close-then-register sequence: two
	// concurrent opens of the same name must not both pass the close,
	// or the losing insert would leak a running reader.
	openMu sync.Mutex

	mu     sync.Mutex
	ports  map[string]*portEntry
	gen    atomic.Uint64
	events chan Event
}

// portEntry is one registry entry: the shared transport, its access
// mutex, the runtime-mutable framing mode cell, and the reader's
// cancellation plumbing. gen identifies this incarnation of the name.
type portEntry struct {
	name   string
	gen    uint64
	tr     Transport
	trMu   sync.Mutex
	mode   *atomic.Pointer[frame.Mode]
	cancel chan struct{}
	stop   sync.Once
	done   chan struct{}
}

// requestStop flips the cancellation flag. Safe to call repeatedly.
func (p *portEntry) requestStop() {
	p.stop.Do(func() { close(p.cancel) })
}

// NewManager creates an empty port manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Opener == nil {
		cfg.Opener = TTYOpener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		opener:       cfg.Opener,
		logger:       cfg.Logger,
		onData:       cfg.OnData,
		onDisconnect: cfg.OnDisconnect,
		ports:        make(map[string]*portEntry),
		events:       make(chan Event, eventQueueSize),
	}
}

// OpenPort opens the named device and starts its reader. Any previous
// session for the name is fully closed first, so a name never has two
// readers. Reports false, without touching the registry, when the
// device cannot be acquired.
func (m *Manager) OpenPort(name string, baud int, timeout time.Duration, mode frame.Mode) bool {
	if name == "" {
		m.logger.Error("cannot open: port name empty")
		return false
	}

	m.openMu.Lock()
	defer m.openMu.Unlock()
	m.ClosePort(name)

	cfg := DefaultPortConfig()
	if validBaudRate(baud) {
		cfg.BaudRate = baud
	} else if baud != 0 {
		m.logger.Error("invalid baud rate, using default",
			"port", name, "baud", baud, "default", cfg.BaudRate)
	}
	if timeout >= 0 {
		cfg.ReadTimeout = timeout
	}

	tr, err := m.opener.Open(name, cfg)
	if err != nil {
		m.logger.Error("failed to open port", "port", name, "error", err)
		return false
	}

	md := mode
	entry := &portEntry{
		name:   name,
		gen:    m.gen.Inc(),
		tr:     tr,
		mode:   atomic.NewPointer(&md),
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.ports[name] = entry
	m.mu.Unlock()

	go m.readLoop(entry)
	m.logger.Info("port opened", "port", name, "baud", cfg.BaudRate, "mode", mode.Kind.String())
	return true
}

// ClosePort stops the reader for name, waits for it to exit, closes the
// transport and removes the registry entry. Idempotent: unknown names
// are a no-op. Must not be called from the port's own reader (it would
// wait on itself); shutdown latency is bounded by the device read
// timeout plus the reader's sleep interval.
func (m *Manager) ClosePort(name string) {
	m.mu.Lock()
	entry, ok := m.ports[name]
	if ok {
		delete(m.ports, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.stopEntry(entry)
	m.logger.Info("port closed", "port", name)
}

// stopEntry cancels the entry's reader, waits for it to exit and closes
// the transport. The entry must already be out of the registry.
func (m *Manager) stopEntry(entry *portEntry) {
	entry.requestStop()
	<-entry.done

	entry.trMu.Lock()
	entry.tr.Close()
	entry.trMu.Unlock()
}

// IsOpen reports registry membership only; it performs no liveness
// probe.
func (m *Manager) IsOpen(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ports[name]
	return ok
}

// Ports returns the identifiers of all registered devices.
func (m *Manager) Ports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.ports))
	for name := range m.ports {
		names = append(names, name)
	}
	return names
}

// SetDelimiter switches the named port to custom-delimiter framing.
// Takes effect on the next chunk; bytes already accumulated are kept.
// Reports false when the port is not registered.
func (m *Manager) SetDelimiter(name string, delim byte) bool {
	m.mu.Lock()
	entry, ok := m.ports[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	md := frame.ModeDelim(delim)
	entry.mode.Store(&md)
	return true
}

// WritePort writes data to the named port and drains the output. Safe
// to call while the port's reader is running; transport access is
// mutually exclusive.
func (m *Manager) WritePort(name string, data []byte) bool {
	m.mu.Lock()
	entry, ok := m.ports[name]
	m.mu.Unlock()
	if !ok {
		m.logger.Error("write to unopened port", "port", name)
		return false
	}

	entry.trMu.Lock()
	_, err := entry.tr.Write(data)
	entry.trMu.Unlock()
	if err == nil {
		entry.trMu.Lock()
		err = entry.tr.Flush()
		entry.trMu.Unlock()
	}
	if err != nil {
		m.logger.Error("port write failed", "port", name, "error", err)
		return false
	}
	return true
}

// ReconfigurePort applies each line parameter independently, continuing
// past individual failures, and reports overall success. Invalid field
// values are rejected with the device's previous setting retained.
func (m *Manager) ReconfigurePort(name string, cfg PortConfig) bool {
	m.mu.Lock()
	entry, ok := m.ports[name]
	m.mu.Unlock()
	if !ok {
		m.logger.Error("reconfigure of unopened port", "port", name)
		return false
	}

	success := true
	apply := func(field string, valid bool, set func() error) {
		if !valid {
			m.logger.Error("invalid value, keeping previous", "field", field, "port", name)
			success = false
			return
		}
		entry.trMu.Lock()
		err := set()
		entry.trMu.Unlock()
		if err != nil {
			m.logger.Error("failed to apply setting", "field", field, "port", name, "error", err)
			success = false
		}
	}

	apply("baud_rate", validBaudRate(cfg.BaudRate), func() error { return entry.tr.SetBaudRate(cfg.BaudRate) })
	apply("data_bits", validDataBits(cfg.DataBits), func() error { return entry.tr.SetDataBits(cfg.DataBits) })
	apply("parity", validParity(cfg.Parity), func() error { return entry.tr.SetParity(cfg.Parity) })
	apply("stop_bits", validStopBits(cfg.StopBits), func() error { return entry.tr.SetStopBits(cfg.StopBits) })
	apply("flow_control", validFlowControl(cfg.FlowControl), func() error { return entry.tr.SetFlowControl(cfg.FlowControl) })
	apply("read_timeout", cfg.ReadTimeout >= 0, func() error { return entry.tr.SetReadTimeout(cfg.ReadTimeout) })

	return success
}

// PollEvents drains everything currently queued, never waiting for new
// events, and returns the drained events in arrival order. Data events
// are relayed through OnData; a disconnect is relayed through
// OnDisconnect and then closes the port to reclaim its resources. A
// disconnect whose port was closed, or closed and reopened, after the
// event was queued is stale: it is dropped silently and the current
// session is left alone.
func (m *Manager) PollEvents() []Event {
	var drained []Event
drain:
	for {
		select {
		case ev := <-m.events:
			drained = append(drained, ev)
		default:
			break drain
		}
	}

	kept := drained[:0]
	for _, ev := range drained {
		if ev.Disconnected {
			entry, ok := m.takeEntry(ev.Port, ev.gen)
			if !ok {
				continue
			}
			if m.onDisconnect != nil {
				m.onDisconnect(ev.Port)
			}
			m.stopEntry(entry)
			m.logger.Info("port closed", "port", ev.Port)
		} else if m.onData != nil {
			m.onData(ev.Port, ev.Data)
		}
		kept = append(kept, ev)
	}
	return kept
}

// takeEntry removes and returns the registry entry for name only if it
// is still the incarnation that produced the event.
func (m *Manager) takeEntry(name string, gen uint64) (*portEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.ports[name]
	if !ok || entry.gen != gen {
		return nil, false
	}
	delete(m.ports, name)
	return entry, true
}

// Close shuts down every open port. The event queue may still hold
// data events from the closed ports; a final PollEvents drains them
// (their disconnect notices, now stale, are dropped).
func (m *Manager) Close() {
	for _, name := range m.Ports() {
		m.ClosePort(name)
	}
}
