package xkit

// sequenceTracker decides whether a request's reply may already be sitting
// in the transport's buffer. The transport assigns strictly increasing
// sequence numbers that wrap at the top of their space, so a number far
// below the last awaited one is a fresh post-wrap request, not an old one.
type sequenceTracker struct {
	jump uint64 // wraparound detection threshold, a fraction of the space
	last uint64
	seen bool
}

// advance reports whether seq still needs a real I/O wait. False means a
// completion at or past seq was already awaited, so the reply must be
// buffered and can be fetched without waiting. On true, last moves up to seq.
func (t *sequenceTracker) advance(seq uint64) bool {
	incr := !t.seen || seq > t.last || seq+t.jump < t.last
	if incr {
		t.last = seq
		t.seen = true
	}
	return incr
}
