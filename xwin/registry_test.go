package xwin

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
)

type stubItem struct {
	ev  xgb.Event
	err error
}

// stubTransport feeds scripted events to a Conn. It has no wire side, so
// registries built over it exercise only the filter and fan-out machinery.
type stubTransport struct {
	mu     sync.Mutex
	queue  []stubItem
	err    error
	closed bool
	ready  chan struct{}
}

func newStubTransport() *stubTransport {
	return &stubTransport{ready: make(chan struct{}, 1)}
}

func (t *stubTransport) push(ev xgb.Event) {
	t.mu.Lock()
	t.queue = append(t.queue, stubItem{ev: ev})
	t.mu.Unlock()
	t.signal()
}

func (t *stubTransport) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.signal()
}

func (t *stubTransport) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

func (t *stubTransport) PollEvent() (xgb.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, nil
	}
	item := t.queue[0]
	t.queue = t.queue[1:]
	return item.ev, item.err
}

func (t *stubTransport) Ready() <-chan struct{} { return t.ready }

func (t *stubTransport) SetReadInterest(bool) {}

func (t *stubTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if t.err == nil {
			t.err = xkit.ErrClosed
		}
	}
	t.mu.Unlock()
	t.signal()
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *stubTransport) {
	t.Helper()
	tr := newStubTransport()
	c := xkit.NewConn(tr)
	t.Cleanup(func() { c.Close() })
	return NewRegistry(c), tr
}

// link records a parent/child edge the way CreateWindow and AdoptChildren
// would, without a wire transport.
func link(r *Registry, parent, child *Window) {
	r.mu.Lock()
	child.parent = parent.id
	parent.children = append(parent.children, child.id)
	r.mu.Unlock()
}

func registryState(r *Registry) (entries int, hooked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, r.hooked
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// tracer appends its window id to a shared trace on every delivery.
type tracer struct {
	mu    sync.Mutex
	trace []xproto.Window
	errs  []error
}

func (tr *tracer) tap(id xproto.Window) xkit.FilterFunc {
	return func(ev xgb.Event, err error) {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		if err != nil {
			tr.errs = append(tr.errs, err)
			return
		}
		tr.trace = append(tr.trace, id)
	}
}

func (tr *tracer) snapshot() []xproto.Window {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]xproto.Window(nil), tr.trace...)
}

func (tr *tracer) errCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.errs)
}

func equalIDs(a, b []xproto.Window) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFanOutDeliversToNamedWindows(t *testing.T) {
	r, tr := newTestRegistry(t)
	w1, w2, w3 := r.Window(1), r.Window(2), r.Window(3)
	link(r, w1, w2)
	link(r, w2, w3)

	var rec tracer
	for _, w := range []*Window{w1, w2, w3} {
		if err := w.AddEventFilter(w, rec.tap(w.ID())); err != nil {
			t.Fatalf("AddEventFilter(%d): %v", w.ID(), err)
		}
	}

	// Names the top and the grandchild; the middle window is only visited.
	tr.push(xproto.MotionNotifyEvent{Event: 1, Child: 3})
	waitFor(t, "motion fan-out", func() bool { return len(rec.snapshot()) == 2 })
	if got := rec.snapshot(); !equalIDs(got, []xproto.Window{1, 3}) {
		t.Fatalf("motion delivered to %v, want [1 3]", got)
	}

	// Names only the middle window via its window field.
	tr.push(xproto.ConfigureNotifyEvent{Event: 9, Window: 2})
	waitFor(t, "configure fan-out", func() bool { return len(rec.snapshot()) == 3 })
	if got := rec.snapshot(); got[2] != 2 {
		t.Fatalf("configure delivered to %v, want trailing 2", got)
	}

	// Carries no window identity at all: nobody fires.
	tr.push(xproto.MappingNotifyEvent{Request: xproto.MappingKeyboard})
	tr.push(xproto.MotionNotifyEvent{Event: 1})
	waitFor(t, "trailing motion", func() bool { return len(rec.snapshot()) == 4 })
	if got := rec.snapshot(); got[3] != 1 {
		t.Fatalf("after mapping notify got %v, want trailing 1 only", got)
	}
}

func TestAnyWindowFiltersFireWhenVisited(t *testing.T) {
	r, tr := newTestRegistry(t)
	w1, w2, w3 := r.Window(1), r.Window(2), r.Window(3)
	link(r, w1, w2)
	link(r, w2, w3)

	var rec tracer
	for _, w := range []*Window{w1, w2, w3} {
		if err := w.AddEventFilter(w, rec.tap(w.ID()), AnyWindow()); err != nil {
			t.Fatalf("AddEventFilter(%d): %v", w.ID(), err)
		}
	}

	// Names only the top, but the fan-out visits the whole subtree.
	tr.push(xproto.PropertyNotifyEvent{Window: 1, Atom: xproto.AtomWmName})
	waitFor(t, "property fan-out", func() bool { return len(rec.snapshot()) == 3 })
	if got := rec.snapshot(); !equalIDs(got, []xproto.Window{1, 2, 3}) {
		t.Fatalf("property delivered to %v, want [1 2 3]", got)
	}

	// No identity fields: the walk stops at top-level windows.
	tr.push(xproto.MappingNotifyEvent{Request: xproto.MappingKeyboard})
	waitFor(t, "mapping fan-out", func() bool { return len(rec.snapshot()) == 4 })
	if got := rec.snapshot(); got[3] != 1 {
		t.Fatalf("mapping notify delivered to %v, want trailing 1", got)
	}
}

func TestWindowFilterMergeAndSubtract(t *testing.T) {
	r, tr := newTestRegistry(t)
	w := r.Window(7)

	var rec tracer
	tag := "keys"
	if err := w.AddEventFilter(tag, rec.tap(1), ForEvents(xproto.KeyPress)); err != nil {
		t.Fatalf("selective add: %v", err)
	}
	// Widening the same registration unions the code sets.
	if err := w.AddEventFilter(tag, rec.tap(2), ForEvents(xproto.ButtonPress)); err != nil {
		t.Fatalf("selective merge: %v", err)
	}
	if entries, _ := registryState(r); entries != 1 {
		t.Fatalf("entries = %d after merge, want 1", entries)
	}

	// Mixing selector shapes under one tag is a contract violation.
	if err := w.AddEventFilter(tag, rec.tap(3)); !errors.Is(err, xkit.ErrSelectorMismatch) {
		t.Fatalf("wildcard merge into selective: %v, want ErrSelectorMismatch", err)
	}
	if err := w.RemoveEventFilter(tag); !errors.Is(err, xkit.ErrSelectorMismatch) {
		t.Fatalf("wildcard removal of selective: %v, want ErrSelectorMismatch", err)
	}

	tr.push(xproto.KeyPressEvent{Detail: 10, Event: 7})
	tr.push(xproto.ButtonPressEvent{Detail: 1, Event: 7})
	tr.push(xproto.MotionNotifyEvent{Event: 7})
	waitFor(t, "merged selector delivery", func() bool { return len(rec.snapshot()) == 2 })
	// The original callback owns the registration; the merge only widened it.
	if got := rec.snapshot(); !equalIDs(got, []xproto.Window{1, 1}) {
		t.Fatalf("deliveries = %v, want [1 1]", got)
	}

	if err := w.RemoveEventFilter(tag, ForEvents(xproto.KeyPress)); err != nil {
		t.Fatalf("subtract KeyPress: %v", err)
	}
	tr.push(xproto.KeyPressEvent{Detail: 10, Event: 7})
	tr.push(xproto.ButtonPressEvent{Detail: 1, Event: 7})
	waitFor(t, "narrowed selector delivery", func() bool { return len(rec.snapshot()) == 3 })

	if err := w.RemoveEventFilter(tag, ForEvents(xproto.ButtonPress)); err != nil {
		t.Fatalf("subtract ButtonPress: %v", err)
	}
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after draining selector, want 0 false", entries, hooked)
	}
	if err := w.RemoveEventFilter(tag, ForEvents(xproto.ButtonPress)); !errors.Is(err, xkit.ErrFilterNotFound) {
		t.Fatalf("remove after drain: %v, want ErrFilterNotFound", err)
	}
}

func TestWildcardDuplicateLeavesStateUntouched(t *testing.T) {
	r, tr := newTestRegistry(t)
	w := r.Window(4)

	var rec tracer
	if err := w.AddEventFilter("all", rec.tap(1)); err != nil {
		t.Fatalf("wildcard add: %v", err)
	}
	if err := w.AddEventFilter("all", rec.tap(2)); !errors.Is(err, xkit.ErrDuplicateFilter) {
		t.Fatalf("duplicate wildcard add: %v, want ErrDuplicateFilter", err)
	}
	if entries, _ := registryState(r); entries != 1 {
		t.Fatalf("entries = %d after duplicate, want 1", entries)
	}

	tr.push(xproto.KeyPressEvent{Detail: 10, Event: 4})
	waitFor(t, "single delivery", func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot(); got[0] != 1 {
		t.Fatalf("delivery went to %v, want the original callback", got)
	}

	if err := w.RemoveEventFilter("all"); err != nil {
		t.Fatalf("wildcard removal: %v", err)
	}
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after removal, want 0 false", entries, hooked)
	}
}

func TestConnHookFollowsRegistrations(t *testing.T) {
	r, _ := newTestRegistry(t)
	w1, w2 := r.Window(1), r.Window(2)

	if _, hooked := registryState(r); hooked {
		t.Fatal("registry hooked before any filter")
	}
	nop := func(xgb.Event, error) {}
	if err := w1.AddEventFilter("a", nop); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, hooked := registryState(r); !hooked {
		t.Fatal("registry not hooked after first filter")
	}
	if err := w2.AddEventFilter("b", nop); err != nil {
		t.Fatalf("add b: %v", err)
	}

	w1.DiscardEventFilter("a")
	if _, hooked := registryState(r); !hooked {
		t.Fatal("hook dropped while a filter remains")
	}
	w2.DiscardEventFilter("b")
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after last removal, want 0 false", entries, hooked)
	}

	// The hook comes back with the next registration.
	if err := w1.AddEventFilter("a", nop); err != nil {
		t.Fatalf("re-add a: %v", err)
	}
	if _, hooked := registryState(r); !hooked {
		t.Fatal("registry not re-hooked")
	}
}

func TestFatalErrorReachesEveryWindowFilter(t *testing.T) {
	r, tr := newTestRegistry(t)
	w1, w2 := r.Window(1), r.Window(2)
	link(r, w1, w2)

	var rec tracer
	if err := w1.AddEventFilter("a", rec.tap(1)); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := w2.AddEventFilter("b", rec.tap(2), ForEvents(xproto.KeyPress)); err != nil {
		t.Fatalf("add b: %v", err)
	}

	tr.fail(io.ErrUnexpectedEOF)
	waitFor(t, "error broadcast", func() bool { return rec.errCount() == 2 })

	rec.mu.Lock()
	for _, err := range rec.errs {
		var cerr *xkit.ConnectionError
		if !errors.As(err, &cerr) {
			t.Fatalf("broadcast error %v is not a ConnectionError", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("broadcast error %v does not wrap the transport fault", err)
		}
	}
	rec.mu.Unlock()

	// The broadcast spends the registry: registrations are gone and late
	// adds surface the same fatal error.
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after broadcast, want 0 false", entries, hooked)
	}
	err := w1.AddEventFilter("late", func(xgb.Event, error) {})
	var cerr *xkit.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("add after death: %v, want a ConnectionError", err)
	}
	r.mu.Lock()
	pending := len(w1.filters)
	r.mu.Unlock()
	if pending != 0 {
		t.Fatalf("%d filters left behind after failed add", pending)
	}
}

func TestWindowWaitForEvent(t *testing.T) {
	r, tr := newTestRegistry(t)
	w1, w2 := r.Window(1), r.Window(2)
	link(r, w1, w2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var ev xgb.Event
	var err error
	go func() {
		defer close(done)
		ev, err = w2.WaitForEvent(ctx, xproto.KeyPress)
	}()

	waitFor(t, "wait registration", func() bool {
		entries, _ := registryState(r)
		return entries == 1
	})
	// Wrong code and wrong window are both skipped.
	tr.push(xproto.ButtonPressEvent{Detail: 1, Event: 2})
	tr.push(xproto.KeyPressEvent{Detail: 42, Event: 1})
	tr.push(xproto.KeyPressEvent{Detail: 43, Event: 2})
	<-done

	if err != nil {
		t.Fatalf("WaitForEvent: %v", err)
	}
	kp, ok := ev.(xproto.KeyPressEvent)
	if !ok || kp.Detail != 43 {
		t.Fatalf("WaitForEvent returned %#v, want KeyPress detail 43", ev)
	}
	waitFor(t, "wait cleanup", func() bool {
		entries, hooked := registryState(r)
		return entries == 0 && !hooked
	})
}

func TestWindowWaitForEventHonorsContext(t *testing.T) {
	r, _ := newTestRegistry(t)
	w := r.Window(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.WaitForEvent(ctx, xproto.KeyPress); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForEvent: %v, want DeadlineExceeded", err)
	}
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after timeout, want 0 false", entries, hooked)
	}
}

func TestRegistryCloseDetaches(t *testing.T) {
	r, tr := newTestRegistry(t)
	w := r.Window(1)

	var rec tracer
	if err := w.AddEventFilter("a", rec.tap(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Close()
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after Close, want 0 false", entries, hooked)
	}
	if err := w.AddEventFilter("b", rec.tap(2)); !errors.Is(err, xkit.ErrClosed) {
		t.Fatalf("add after Close: %v, want ErrClosed", err)
	}

	// Events after Close go nowhere.
	tr.push(xproto.KeyPressEvent{Detail: 1, Event: 1})
	time.Sleep(20 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("deliveries after Close: %v", got)
	}
	r.Close()
}

func TestWindowArenaIdentityAndRelease(t *testing.T) {
	r, _ := newTestRegistry(t)

	w := r.Window(5)
	if r.Window(5) != w {
		t.Fatal("arena returned two wrappers for one id")
	}
	if r.Lookup(6) != nil {
		t.Fatal("Lookup invented a wrapper")
	}

	parent := r.Window(4)
	link(r, parent, w)
	if err := w.AddEventFilter("a", func(xgb.Event, error) {}); err != nil {
		t.Fatalf("add: %v", err)
	}

	w.Release()
	if r.Lookup(5) != nil {
		t.Fatal("released window still tracked")
	}
	if kids := parent.Children(); len(kids) != 0 {
		t.Fatalf("parent still links released child: %v", kids)
	}
	if entries, hooked := registryState(r); entries != 0 || hooked {
		t.Fatalf("entries=%d hooked=%v after release, want 0 false", entries, hooked)
	}
	// Releasing a stale handle is a no-op.
	w.Release()
}
