package tapx

// PendingOp represents an operation that has been dispatched and may
// still receive responses.
type PendingOp interface {
	Cancel(err error) bool
}

// DispatchCallback handles one response packet for a dispatched
// request, returning whether further packets are expected for it.
type DispatchCallback func(*Packet, error) bool

// Dispatcher writes request packets and routes their responses.  A tap
// session has at most one request in flight before it switches to
// receive-only streaming, so implementations need not correlate
// responses by opaque.
type Dispatcher interface {
	Dispatch(*Packet, DispatchCallback) (PendingOp, error)
}
