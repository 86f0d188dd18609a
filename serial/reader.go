package serial

import (
	"time"

	"github.com/SujithChristopher/gdserial/frame"
)

// readLoop is the per-port reader task. It alternates bounded reads
// with the foreground API on the shared transport mutex, feeds every
// chunk to the framing machine and queues the resulting messages. The
// loop ends on cancellation, or on the first read error that is not a
// timeout, which produces a single disconnect event; no further events
// follow until the port is reopened.
func (m *Manager) readLoop(p *portEntry) {
	defer close(p.done)

	machine := frame.NewMachine(*p.mode.Load())
	buf := make([]byte, 4096)

	for {
		select {
		case <-p.cancel:
			return
		default:
		}

		if md := *p.mode.Load(); md != machine.Mode() {
			machine.SetMode(md)
		}

		p.trMu.Lock()
		n, err := p.tr.Read(buf)
		p.trMu.Unlock()

		switch {
		case err != nil && Classify(err) == KindTransient:
			if !m.flushPartial(p, machine) {
				return
			}
		case err != nil:
			m.logger.Warn("port reader stopping", "port", p.name,
				"error", err, "kind", Classify(err).String())
			m.emit(p, Event{Port: p.name, Disconnected: true})
			return
		case n == 0:
			// bounded read expired with no data
			if !m.flushPartial(p, machine) {
				return
			}
		default:
			for _, msg := range machine.Feed(buf[:n]) {
				if !m.emit(p, Event{Port: p.name, Data: msg}) {
					return
				}
			}
		}

		select {
		case <-p.cancel:
			return
		case <-time.After(readerSleep):
		}
	}
}

// flushPartial emits the accumulator after a timeout, bounding the
// latency of partial frames. Reports false when the port was cancelled
// while the queue was full.
func (m *Manager) flushPartial(p *portEntry, machine *frame.Machine) bool {
	msg := machine.Flush()
	if msg == nil {
		return true
	}
	return m.emit(p, Event{Port: p.name, Data: msg})
}

// emit queues one event in arrival order, stamped with the port's
// incarnation. On a full queue it blocks until the host polls or the
// port is cancelled; it never drops events.
func (m *Manager) emit(p *portEntry, ev Event) bool {
	ev.gen = p.gen
	select {
	case m.events <- ev:
		return true
	case <-p.cancel:
		return false
	}
}
