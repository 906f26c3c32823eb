package gotap

import (
	"github.com/couchbaselabs/gotap/tapx"
)

// TapEventsHandlers is the subscription surface of a TapClient.  Any
// handler may be nil; dispatch preserves arrival order and runs on the
// connection's receive goroutine, so handlers must not block if the
// stream is to keep up.
type TapEventsHandlers struct {
	// Connect fires once the handshake completes and the session is
	// ready (or already streaming, when a stream was configured).
	Connect func()

	// Error fires once for the terminal error of the session.
	Error func(err error)

	// Close and End mirror the transport's lifecycle signals.
	Close func()
	End   func()

	// Packet observes every inbound packet verbatim before any
	// state-specific handling.  Debugging hook only.
	Packet func(pak *tapx.Packet)

	Mutation func(evt *tapx.TapMutationEvent)
	Deletion func(evt *tapx.TapDeletionEvent)
	Flush    func(evt *tapx.TapFlushEvent)
	Opaque   func(evt *tapx.TapOpaqueEvent)
}
