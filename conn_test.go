package xkit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// mockTransport scripts the response stream and records every read-interest
// transition the Conn pushes down.
type mockTransport struct {
	mu       sync.Mutex
	queue    []wireItem
	err      error
	interest []bool
	closed   bool

	ready chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{ready: make(chan struct{}, 1)}
}

func (t *mockTransport) push(ev xgb.Event) {
	t.mu.Lock()
	t.queue = append(t.queue, wireItem{ev: ev})
	t.mu.Unlock()
	t.signal()
}

func (t *mockTransport) pushErr(err error) {
	t.mu.Lock()
	t.queue = append(t.queue, wireItem{err: err})
	t.mu.Unlock()
	t.signal()
}

func (t *mockTransport) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.signal()
}

func (t *mockTransport) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

func (t *mockTransport) PollEvent() (xgb.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, nil
	}
	it := t.queue[0]
	t.queue = t.queue[1:]
	return it.ev, it.err
}

func (t *mockTransport) Ready() <-chan struct{} { return t.ready }

func (t *mockTransport) SetReadInterest(v bool) {
	t.mu.Lock()
	t.interest = append(t.interest, v)
	t.mu.Unlock()
}

func (t *mockTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.err == nil {
		t.err = ErrClosed
	}
	select {
	case t.ready <- struct{}{}:
	default:
	}
	return nil
}

func (t *mockTransport) interestLog() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]bool, len(t.interest))
	copy(out, t.interest)
	return out
}

func recvEvent(t *testing.T, ch <-chan xgb.Event) xgb.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event dispatch")
	}
	return nil
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error broadcast")
	}
	return nil
}

func TestReadInterestTracksWaiters(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	if got := tr.interestLog(); len(got) != 0 {
		t.Fatalf("interest touched before any waiter: %v", got)
	}

	// Events arriving while nobody waits must sit in the transport.
	tr.push(xproto.KeyPressEvent{Detail: 38})

	got := make(chan xgb.Event, 1)
	if err := c.AddEventFilter("probe", func(ev xgb.Event, err error) {
		if err == nil {
			got <- ev
		}
	}); err != nil {
		t.Fatalf("AddEventFilter: %v", err)
	}
	if log := tr.interestLog(); len(log) == 0 || log[len(log)-1] != true {
		t.Fatalf("interest after filter add = %v, want trailing true", log)
	}

	// The buffered event flows as soon as a waiter exists.
	ev := recvEvent(t, got)
	if _, ok := ev.(xproto.KeyPressEvent); !ok {
		t.Fatalf("dispatched event = %T, want xproto.KeyPressEvent", ev)
	}

	if err := c.RemoveEventFilter("probe"); err != nil {
		t.Fatalf("RemoveEventFilter: %v", err)
	}
	if log := tr.interestLog(); log[len(log)-1] != false {
		t.Fatalf("interest after filter removal = %v, want trailing false", log)
	}
	if filters, replies, armed := c.pending(); filters != 0 || replies != 0 || armed {
		t.Fatalf("pending after removal = (%d, %d, %v), want (0, 0, false)", filters, replies, armed)
	}

	// A queued reply wait arms the subscription too, and it drops again
	// once the waiter is serviced.
	fut := c.WaitForReply(&Request{
		Sequence: 1,
		Fetch:    func() (interface{}, error) { return "done", nil },
	})
	if v, err := fut.Await(context.Background()); err != nil || v != "done" {
		t.Fatalf("reply = (%v, %v), want (done, nil)", v, err)
	}
	log := tr.interestLog()
	if len(log) < 2 || log[len(log)-2] != true || log[len(log)-1] != false {
		t.Fatalf("interest around reply wait = %v, want ... true false", log)
	}
}

func TestRepliesResolveInRequestOrder(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	var mu sync.Mutex
	var order []int
	mkReq := func(seq uint64, id int) *Request {
		return &Request{
			Sequence: seq,
			Fetch: func() (interface{}, error) {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return id, nil
			},
		}
	}

	futs := []*Future{
		c.WaitForReply(mkReq(10, 1)),
		c.WaitForReply(mkReq(11, 2)),
		c.WaitForReply(mkReq(12, 3)),
	}
	for i, fut := range futs {
		v, err := fut.Await(context.Background())
		if err != nil || v != i+1 {
			t.Fatalf("reply %d = (%v, %v), want (%d, nil)", i, v, err, i+1)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		if id != i+1 {
			t.Fatalf("fetch order = %v, want strictly increasing", order)
		}
	}
}

func TestBufferedReplyFetchedSynchronously(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	fut := c.WaitForReply(&Request{
		Sequence: 100,
		Fetch:    func() (interface{}, error) { return "first", nil },
	})
	if _, err := fut.Await(context.Background()); err != nil {
		t.Fatalf("first reply: %v", err)
	}

	// A sequence at or behind one already awaited means the server has
	// answered: the fetch happens on the calling goroutine, no queueing.
	fut = c.WaitForReply(&Request{
		Sequence: 99,
		Fetch:    func() (interface{}, error) { return "buffered", nil },
	})
	if v, err, ok := fut.Result(); !ok || err != nil || v != "buffered" {
		t.Fatalf("buffered reply = (%v, %v, %v), want (buffered, nil, true)", v, err, ok)
	}
	if _, replies, _ := c.pending(); replies != 0 {
		t.Fatalf("buffered fetch left %d queued waiters", replies)
	}
}

func TestVoidRequestResolvesImmediately(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	fut := c.WaitForReply(&Request{Sequence: 7})
	if v, err, ok := fut.Result(); !ok || err != nil || v != nil {
		t.Fatalf("void request = (%v, %v, %v), want (nil, nil, true)", v, err, ok)
	}
}

func TestEventFanoutOrderAndSelectors(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	var mu sync.Mutex
	var calls []string
	seen := make(chan string, 8)
	log := func(name string) FilterFunc {
		return func(ev xgb.Event, err error) {
			if err != nil {
				return
			}
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			seen <- name
		}
	}

	if err := c.AddEventFilter("all", log("all")); err != nil {
		t.Fatalf("add all: %v", err)
	}
	if err := c.AddEventFilter("buttons", log("buttons"), xproto.ButtonPress); err != nil {
		t.Fatalf("add buttons: %v", err)
	}
	if err := c.AddEventFilter("buttons", log("dup"), xproto.ButtonPress); !errors.Is(err, ErrDuplicateFilter) {
		t.Fatalf("duplicate tag error = %v, want ErrDuplicateFilter", err)
	}

	tr.push(xproto.KeyPressEvent{Detail: 38})
	if name := <-seen; name != "all" {
		t.Fatalf("key press reached %q first, want all", name)
	}

	tr.push(xproto.ButtonPressEvent{Detail: 1})
	first, second := <-seen, <-seen
	if first != "all" || second != "buttons" {
		t.Fatalf("button press fan-out order = [%s %s], want [all buttons]", first, second)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("delivery count = %d (%v), want 3", len(calls), calls)
	}
}

func TestRemovalDuringDispatchAffectsNextEventOnly(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	done := make(chan struct{}, 4)

	if err := c.AddEventFilter("first", func(ev xgb.Event, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		counts["first"]++
		mu.Unlock()
		c.DiscardEventFilter("second")
		done <- struct{}{}
	}); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := c.AddEventFilter("second", func(ev xgb.Event, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		counts["second"]++
		mu.Unlock()
		done <- struct{}{}
	}); err != nil {
		t.Fatalf("add second: %v", err)
	}

	tr.push(xproto.KeyPressEvent{Detail: 1})
	tr.push(xproto.KeyPressEvent{Detail: 2})

	// Event one reaches both (the fan-out pass snapshots the registry);
	// event two reaches only the survivor.
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d deliveries", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if counts["first"] != 2 || counts["second"] != 1 {
		t.Fatalf("delivery counts = %v, want first:2 second:1", counts)
	}
}

func TestRepliesBeforeBufferedEvents(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	var mu sync.Mutex
	var trace []string
	delivered := make(chan byte, 2)

	if err := c.AddEventFilter("trace", func(ev xgb.Event, err error) {
		if err != nil {
			return
		}
		code := EventCode(ev)
		mu.Lock()
		trace = append(trace, "event")
		mu.Unlock()
		delivered <- code
	}); err != nil {
		t.Fatalf("add filter: %v", err)
	}

	release := make(chan struct{})
	fut := c.WaitForReply(&Request{
		Sequence: 1,
		Fetch: func() (interface{}, error) {
			<-release
			mu.Lock()
			trace = append(trace, "reply")
			mu.Unlock()
			return "ok", nil
		},
	})

	tr.push(xproto.KeyPressEvent{Detail: 38})
	tr.push(xproto.ButtonPressEvent{Detail: 1})
	close(release)

	if v, err := fut.Await(context.Background()); err != nil || v != "ok" {
		t.Fatalf("reply = (%v, %v), want (ok, nil)", v, err)
	}
	codes := []byte{recvCode(t, delivered), recvCode(t, delivered)}
	if codes[0] != xproto.KeyPress || codes[1] != xproto.ButtonPress {
		t.Fatalf("event order = %v, want [KeyPress ButtonPress]", codes)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"reply", "event", "event"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func recvCode(t *testing.T, ch <-chan byte) byte {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event code")
	}
	return 0
}

func TestWaitForEventOneShot(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	type result struct {
		ev  xgb.Event
		err error
	}
	res := make(chan result, 1)
	go func() {
		ev, err := c.WaitForEvent(context.Background(), xproto.ButtonPress)
		res <- result{ev, err}
	}()

	// Wait for the one-shot registration before pushing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if filters, _, _ := c.pending(); filters == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("one-shot filter never registered")
		}
		time.Sleep(time.Millisecond)
	}

	tr.push(xproto.KeyPressEvent{Detail: 38}) // wrong code, skipped
	tr.push(xproto.ButtonPressEvent{Detail: 3})

	r := <-res
	if r.err != nil {
		t.Fatalf("WaitForEvent: %v", r.err)
	}
	bp, ok := r.ev.(xproto.ButtonPressEvent)
	if !ok || bp.Detail != 3 {
		t.Fatalf("WaitForEvent = %#v, want ButtonPressEvent{Detail: 3}", r.ev)
	}

	// The filter deregisters itself after one delivery.
	deadline = time.Now().Add(2 * time.Second)
	for {
		if filters, _, _ := c.pending(); filters == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("one-shot filter still registered after delivery")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitForEventHonorsContext(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.WaitForEvent(ctx, xproto.KeyPress); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitForEvent on canceled ctx = %v, want context.Canceled", err)
	}
	if filters, _, _ := c.pending(); filters != 0 {
		t.Fatalf("canceled wait leaked its filter")
	}
}

func TestErroredEventSlotsAreSkipped(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	got := make(chan xgb.Event, 1)
	if err := c.AddEventFilter("f", func(ev xgb.Event, err error) {
		if err == nil {
			got <- ev
		}
	}); err != nil {
		t.Fatalf("AddEventFilter: %v", err)
	}

	tr.pushErr(errors.New("BadWindow from an unchecked request"))
	tr.push(xproto.KeyPressEvent{Detail: 24})

	ev := recvEvent(t, got)
	if _, ok := ev.(xproto.KeyPressEvent); !ok {
		t.Fatalf("event after errored slot = %T, want KeyPressEvent", ev)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("errored slot killed the connection: %v", err)
	}
}

func TestFatalErrorBroadcast(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	errs := make(chan error, 2)
	calls := 0
	var mu sync.Mutex
	if err := c.AddEventFilter("f", func(ev xgb.Event, err error) {
		if err != nil {
			mu.Lock()
			calls++
			mu.Unlock()
			errs <- err
		}
	}); err != nil {
		t.Fatalf("AddEventFilter: %v", err)
	}

	tr.fail(io.ErrUnexpectedEOF)

	err := recvErr(t, errs)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("broadcast error = %T (%v), want *ConnectionError", err, err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("broadcast error %v does not wrap the transport error", err)
	}

	// The connection is now unusable for new waits.
	if aerr := c.AddEventFilter("late", func(xgb.Event, error) {}); !errors.Is(aerr, io.ErrUnexpectedEOF) {
		t.Fatalf("AddEventFilter on dead conn = %v, want the connection error", aerr)
	}
	fut := c.WaitForReply(&Request{Sequence: 5, Fetch: func() (interface{}, error) { return nil, nil }})
	if _, rerr := fut.Await(context.Background()); !errors.Is(rerr, io.ErrUnexpectedEOF) {
		t.Fatalf("WaitForReply on dead conn = %v, want the connection error", rerr)
	}

	// Closing afterwards must not re-broadcast.
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("filter saw %d error broadcasts, want exactly 1", calls)
	}
}

func TestInFlightFetchDowngradesToConnectionError(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)
	defer c.Close()

	release := make(chan struct{})
	fut := c.WaitForReply(&Request{
		Sequence: 1,
		Fetch: func() (interface{}, error) {
			<-release
			return "stale", nil
		},
	})

	tr.fail(io.EOF)
	close(release)

	_, err := fut.Await(context.Background())
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || !errors.Is(err, io.EOF) {
		t.Fatalf("in-flight reply after transport death = %v, want ConnectionError wrapping io.EOF", err)
	}
}

func TestCloseRejectsWaitersAndIsIdempotent(t *testing.T) {
	tr := newMockTransport()
	c := NewConn(tr)

	errs := make(chan error, 1)
	if err := c.AddEventFilter("f", func(ev xgb.Event, err error) {
		if err != nil {
			errs <- err
		}
	}); err != nil {
		t.Fatalf("AddEventFilter: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := recvErr(t, errs); !errors.Is(err, ErrClosed) {
		t.Fatalf("close broadcast = %v, want ErrClosed", err)
	}
	if err := c.Err(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Err after close = %v, want ErrClosed", err)
	}
	fut := c.WaitForReply(&Request{Sequence: 9, Fetch: func() (interface{}, error) { return nil, nil }})
	if _, err := fut.Await(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("WaitForReply after close = %v, want ErrClosed", err)
	}
}
