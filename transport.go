package xkit

import "github.com/BurntSushi/xgb"

// Transport is the wire side of a Conn: the marshalling layer that owns the
// socket. Dial wires the xgb-backed implementation; tests and alternative
// backends plug their own into NewConn. Implementations must tolerate the
// dispatcher goroutine and request-issuing goroutines calling concurrently.
type Transport interface {
	// PollEvent returns the next buffered event without blocking. Both
	// returns are nil when nothing is buffered. A non-nil error reports a
	// malformed or asynchronous-error slot in the stream; it consumes that
	// slot only and does not mean the connection is broken.
	PollEvent() (xgb.Event, error)

	// Ready is pulsed whenever new input may have been buffered.
	Ready() <-chan struct{}

	// SetReadInterest mirrors whether any waiter currently wants wire
	// input. The connection holds exactly one interest subscription, and
	// only while it has waiters.
	SetReadInterest(on bool)

	// Err reports the fatal connection error, or nil while healthy.
	Err() error

	// Close tears the wire connection down. Must be idempotent.
	Close() error
}

// Request ties a request already written to the wire to the retrieval of
// its reply.
type Request struct {
	// Sequence is the transport-assigned sequence number, widened to 64
	// bits.
	Sequence uint64

	// Fetch blocks until the reply or X error for this request is
	// available. Nil marks a void request: the server never answers, so
	// waits on it resolve immediately.
	Fetch func() (interface{}, error)
}
