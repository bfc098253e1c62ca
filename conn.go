package xkit

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/BurntSushi/xgb"
)

// DefaultSequenceJump is the wraparound threshold for a 32-bit sequence
// space. Transports with narrower counters override it; the xgb-backed
// transport uses 1<<14 against its 16-bit wire counter.
const DefaultSequenceJump = 1 << 30

// Option configures a Conn at construction.
type Option func(*Conn)

// WithSequenceJump sets the wraparound detection threshold for the reply
// tracker. It should be a fraction of the transport's sequence space.
func WithSequenceJump(jump uint64) Option {
	return func(c *Conn) { c.seq.jump = jump }
}

// WithAtomRequests gives the connection an atom cache bound to the supplied
// request constructors. Dial does this automatically.
func WithAtomRequests(rq AtomRequests) Option {
	return func(c *Conn) { c.atoms = newAtomCache(c, rq) }
}

// WithLogger routes the connection's diagnostics to l instead of the package
// logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Conn) { c.log = l }
}

// replyWaiter pairs a queued request with the future its caller holds.
type replyWaiter struct {
	req *Request
	fut *Future
}

// Conn multiplexes one X connection's two response streams (server-pushed
// events and request-correlated replies) across any number of goroutines.
// A single dispatcher goroutine owns all delivery: replies strictly in
// request order, events fanned out to registered filters.
type Conn struct {
	tr Transport
	xc *xgb.Conn // set by Dial; nil over custom transports

	mu      sync.Mutex
	seq     sequenceTracker
	filters filterList
	replyq  []*replyWaiter
	armed   bool  // read interest currently installed
	dead    error // non-nil once the connection is unusable

	kick chan struct{} // wakes the dispatcher after waiter mutations
	quit chan struct{} // closed by Close
	done chan struct{} // closed when the dispatcher has torn down

	closeOnce sync.Once
	atoms     *AtomCache
	log       *log.Logger
}

// NewConn runs a connection over t. The returned Conn is live: its
// dispatcher goroutine runs until Close or a fatal transport error.
func NewConn(t Transport, opts ...Option) *Conn {
	c := &Conn{
		tr:   t,
		seq:  sequenceTracker{jump: DefaultSequenceJump},
		kick: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatch()
	return c
}

// Dial connects to the X server named by display (":0", "host:1.0", or empty
// for $DISPLAY) and returns a Conn wired to it, with a seeded atom cache.
func Dial(display string) (*Conn, error) {
	xc, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}
	c := NewConn(newWireTransport(xc),
		WithSequenceJump(wireSequenceJump),
		WithAtomRequests(wireAtomRequests(xc)),
	)
	c.xc = xc
	return c, nil
}

// Wire exposes the underlying xgb connection for request marshalling. It is
// nil when the Conn was built over a custom Transport.
func (c *Conn) Wire() *xgb.Conn { return c.xc }

// Atoms returns the connection's atom cache, or nil when no atom request
// bindings were configured.
func (c *Conn) Atoms() *AtomCache { return c.atoms }

// Err reports why the connection is unusable, or nil while it is healthy.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

// AddEventFilter registers fn under tag for every incoming event whose code
// is in codes (every event when codes is empty). Tags must be comparable and
// unique per connection: a second add under a live tag fails with
// ErrDuplicateFilter and changes nothing.
func (c *Conn) AddEventFilter(tag interface{}, fn FilterFunc, codes ...byte) error {
	if tag == nil || fn == nil {
		return errors.New("event filter needs a tag and a callback")
	}
	c.mu.Lock()
	if c.dead != nil {
		err := c.dead
		c.mu.Unlock()
		return err
	}
	if err := c.filters.add(tag, fn, codes); err != nil {
		c.mu.Unlock()
		return err
	}
	c.updateInterestLocked()
	c.mu.Unlock()
	c.wake()
	return nil
}

// RemoveEventFilter deregisters the filter under tag, failing with
// ErrFilterNotFound when no such registration exists. A filter removed
// during event dispatch still sees the event being dispatched (delivery
// works off a snapshot) but no later ones.
func (c *Conn) RemoveEventFilter(tag interface{}) error {
	c.mu.Lock()
	err := c.filters.remove(tag)
	if err == nil {
		c.updateInterestLocked()
	}
	c.mu.Unlock()
	return err
}

// DiscardEventFilter removes the filter under tag if it is registered and is
// a no-op otherwise.
func (c *Conn) DiscardEventFilter(tag interface{}) {
	c.mu.Lock()
	if c.filters.remove(tag) == nil {
		c.updateInterestLocked()
	}
	c.mu.Unlock()
}

// WaitForEvent blocks until the next event whose code is in codes arrives
// (any event when codes is empty). It returns early if ctx ends or the
// connection dies. It is a one-shot filter: the event it returns is also
// seen by the persistent filters, in their registration order.
func (c *Conn) WaitForEvent(ctx context.Context, codes ...byte) (xgb.Event, error) {
	fut := newFuture()
	if err := c.AddEventFilter(fut, func(ev xgb.Event, err error) {
		c.DiscardEventFilter(fut)
		fut.resolve(ev, err)
	}, codes...); err != nil {
		return nil, err
	}
	val, err := fut.Await(ctx)
	if err != nil {
		c.DiscardEventFilter(fut)
		return nil, err
	}
	ev, _ := val.(xgb.Event)
	return ev, nil
}

// WaitForReply returns a future for req's reply.
//
// Void requests resolve immediately with no value. Otherwise the sequence
// tracker decides: if a completion at or past req.Sequence was already
// awaited, the reply must be buffered, so it is fetched synchronously on the
// caller's goroutine; otherwise the waiter queues behind the dispatcher and
// resolves in strict request order. Either way, if the transport is fatally
// broken at resolution time the future rejects with the connection error.
func (c *Conn) WaitForReply(req *Request) *Future {
	fut := newFuture()
	if req == nil || req.Fetch == nil {
		fut.resolve(nil, nil)
		return fut
	}
	c.mu.Lock()
	if c.dead != nil {
		err := c.dead
		c.mu.Unlock()
		fut.resolve(nil, err)
		return fut
	}
	if !c.seq.advance(req.Sequence) {
		c.mu.Unlock()
		c.settle(req, fut)
		return fut
	}
	c.replyq = append(c.replyq, &replyWaiter{req: req, fut: fut})
	c.updateInterestLocked()
	c.mu.Unlock()
	c.wake()
	return fut
}

// Reply is WaitForReply followed by Await.
func (c *Conn) Reply(ctx context.Context, req *Request) (interface{}, error) {
	return c.WaitForReply(req).Await(ctx)
}

// Close shuts the connection down. Queued reply waits reject with ErrClosed
// and every registered filter sees it once before the transport closes. Safe
// to call any number of times, including after a fatal transport error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.wake()
		// Closing the transport first unblocks a dispatcher stuck
		// fetching a reply that will never arrive.
		if err := c.tr.Close(); err != nil {
			c.log.Printf("transport close: %v", err)
		}
		<-c.done
	})
	return nil
}

// wake nudges the dispatcher after a waiter mutation.
func (c *Conn) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// updateInterestLocked recomputes the one readable-interest subscription:
// present iff some waiter (filter or queued reply) exists and the connection
// is healthy. Runs under c.mu on every waiter mutation.
func (c *Conn) updateInterestLocked() {
	want := c.dead == nil && c.filters.len()+len(c.replyq) > 0
	if want != c.armed {
		c.armed = want
		c.tr.SetReadInterest(want)
	}
}

// settle fetches req's reply and resolves fut, downgrading to the fatal
// connection error if the transport died meanwhile.
func (c *Conn) settle(req *Request, fut *Future) {
	val, err := req.Fetch()
	if terr := c.tr.Err(); terr != nil {
		fut.resolve(nil, &ConnectionError{Err: terr})
		return
	}
	fut.resolve(val, err)
}

// dispatch is the connection's sole delivery goroutine. Each cycle services
// at most one queued reply, then drains every buffered event, then re-probes
// the transport for a fatal error; a continuous event stream cannot starve
// replies, and replies cannot starve events.
func (c *Conn) dispatch() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.terminate(&ConnectionError{Err: ErrClosed})
			return
		default:
		}

		c.mu.Lock()
		var w *replyWaiter
		if len(c.replyq) > 0 {
			w = c.replyq[0]
			c.replyq = c.replyq[1:]
			c.updateInterestLocked()
		}
		armed := c.armed || w != nil
		c.mu.Unlock()

		switch {
		case w != nil:
			c.settle(w.req, w.fut)
		case !armed:
			// No waiters: stay unsubscribed and park. Buffered
			// events keep until someone cares.
			select {
			case <-c.kick:
			case <-c.quit:
				c.terminate(&ConnectionError{Err: ErrClosed})
				return
			}
			continue
		default:
			select {
			case <-c.tr.Ready():
			case <-c.kick:
			case <-c.quit:
				c.terminate(&ConnectionError{Err: ErrClosed})
				return
			}
		}

		c.drainEvents()

		if err := c.tr.Err(); err != nil {
			c.terminate(&ConnectionError{Err: err})
			return
		}

		c.mu.Lock()
		c.updateInterestLocked()
		c.mu.Unlock()
	}
}

// drainEvents empties the transport's buffer, dispatching each event to a
// fresh snapshot of the filter list. Filters added or removed while one
// event is being dispatched never affect that event's pass, only later ones.
func (c *Conn) drainEvents() {
	for {
		ev, err := c.tr.PollEvent()
		if err != nil {
			// Malformed slot or an asynchronous X error from an
			// unchecked request: consumed, logged, never fatal.
			c.log.Printf("discarding errored event slot: %v", err)
			continue
		}
		if ev == nil {
			return
		}
		code := EventCode(ev)
		c.mu.Lock()
		snap := c.filters.snapshot()
		c.mu.Unlock()
		for _, e := range snap {
			if e.matches(code) {
				e.fn(ev, nil)
			}
		}
	}
}

// terminate runs the one-time death sequence on the dispatcher goroutine:
// mark dead, reject queued replies, fan the error out to filters, release
// the transport and the atom cache.
func (c *Conn) terminate(cerr *ConnectionError) {
	c.mu.Lock()
	if c.dead != nil {
		c.mu.Unlock()
		return
	}
	c.dead = cerr
	waiters := c.replyq
	c.replyq = nil
	snap := c.filters.snapshot()
	c.updateInterestLocked()
	c.mu.Unlock()

	for _, w := range waiters {
		w.fut.resolve(nil, cerr)
	}
	for _, e := range snap {
		e.fn(nil, cerr)
	}
	if c.atoms != nil {
		c.atoms.close(cerr)
	}
	if err := c.tr.Close(); err != nil {
		c.log.Printf("transport close: %v", err)
	}
}

// pending reports the waiter census; tests use it to pin the subscription
// invariant.
func (c *Conn) pending() (filters, replies int, interested bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.len(), len(c.replyq), c.armed
}
