// Package serial manages live communication sessions with serial
// devices on Linux.
//
// Two surfaces are provided. Session is the synchronous single-port
// API: open, read, write, readline, each preceded by an active liveness
// probe so that device removal is detected even on platforms where a
// stale handle keeps returning successful zero-length reads. Manager is
// the concurrent multi-port API: one background reader goroutine per
// open device frames the raw byte stream into discrete messages (raw
// chunks, line-delimited, or a custom single-byte delimiter, see the
// frame package) and pushes them onto a single ordered event queue that
// the host drains with PollEvents.
//
// Errors from the transport are classified (Classify) into disconnects,
// transients and everything else. Timeouts never close a session;
// disconnect-class errors always tear down exactly the affected device.
//
// The production transport drives the terminal layer directly through
// golang.org/x/sys/unix and does not support Windows. Port enumeration
// uses go.bug.st/serial's platform enumerator.
package serial
