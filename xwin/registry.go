// Package xwin layers window wrappers over an xkit connection: a per-window
// event fan-out that mirrors the server-side window tree, property and EWMH
// helpers, and thin constructors for pixmaps, graphics contexts, cursors and
// clip regions.
//
// All wrappers for one connection live in a Registry, an arena keyed by the
// server-assigned window id. The arena owns the canonical wrapper for each
// id; handles returned to callers stay valid until the window is released.
// Nothing here is released by garbage collection; call Destroy, Release or
// Registry.Close explicitly.
package xwin

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
)

// Registry tracks every window wrapper created over one connection and owns
// the single connection-level event filter that feeds the per-window fan-out.
// That filter is registered while at least one window filter exists and
// removed with the last one, so an idle registry costs the connection
// nothing.
type Registry struct {
	c *xkit.Conn

	mu      sync.Mutex
	windows map[xproto.Window]*Window
	entries int
	hooked  bool
	closed  bool
	dead    error

	xfixesOnce sync.Once
	xfixesErr  error
	randrOnce  sync.Once
	randrErr   error
}

// NewRegistry builds an empty registry over c.
func NewRegistry(c *xkit.Conn) *Registry {
	return &Registry{
		c:       c,
		windows: make(map[xproto.Window]*Window),
	}
}

// Conn returns the connection the registry dispatches for.
func (r *Registry) Conn() *xkit.Conn { return r.c }

// Window returns the canonical wrapper for id, creating it when the id is
// not yet tracked. Two calls with one id always return the same *Window.
func (r *Registry) Window(id xproto.Window) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windowLocked(id)
}

func (r *Registry) windowLocked(id xproto.Window) *Window {
	w, ok := r.windows[id]
	if !ok {
		w = &Window{r: r, id: id}
		r.windows[id] = w
	}
	return w
}

// Lookup returns the wrapper for id, or nil when the registry does not track
// it. It never creates one.
func (r *Registry) Lookup(id xproto.Window) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows[id]
}

// Root returns the wrapper for the default screen's root window.
func (r *Registry) Root() (*Window, error) {
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	screen := xproto.Setup(xc).DefaultScreen(xc)
	return r.Window(screen.Root), nil
}

// Close drops every tracked window and detaches the registry from the
// connection. Wrappers handed out earlier become inert: their filters are
// gone and re-registering fails with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	hooked := r.hooked
	r.hooked = false
	r.entries = 0
	r.windows = make(map[xproto.Window]*Window)
	r.mu.Unlock()
	if hooked {
		r.c.DiscardEventFilter(r)
	}
}

// retainLocked counts a new window filter registration and installs the
// connection hook with the first one. Callers hold r.mu.
func (r *Registry) retainLocked() error {
	if r.closed {
		return xkit.ErrClosed
	}
	if r.dead != nil {
		return r.dead
	}
	if r.entries == 0 && !r.hooked {
		if err := r.c.AddEventFilter(r, r.dispatch); err != nil {
			return err
		}
		r.hooked = true
	}
	r.entries++
	return nil
}

// releaseLocked drops n filter registrations and removes the connection hook
// with the last one. Callers hold r.mu.
func (r *Registry) releaseLocked(n int) {
	r.entries -= n
	if r.entries > 0 || !r.hooked {
		return
	}
	r.hooked = false
	r.c.DiscardEventFilter(r)
}

// dispatch is the connection-level filter behind every window filter. A
// fatal connection error spends the whole registry: every registration sees
// the error exactly once and later adds fail with it. An event walks the
// tracked tree from the top-level windows down.
func (r *Registry) dispatch(ev xgb.Event, err error) {
	if err != nil {
		for _, f := range r.spend(err) {
			f.fn(nil, err)
		}
		return
	}
	code := xkit.EventCode(ev)
	fields := windowFields(ev)
	seen := make(map[xproto.Window]bool)
	for _, w := range r.tops() {
		r.fanOut(w, ev, code, fields, seen)
	}
}

// fanOut delivers ev to w's filters and then to every tracked descendant.
// Selective-identity filters fire only when the event names their window;
// AnyWindow filters fire at every visited node. Events that name no window
// stop at the top level, everything else bubbles down the whole subtree.
func (r *Registry) fanOut(w *Window, ev xgb.Event, code byte, fields []xproto.Window, seen map[xproto.Window]bool) {
	if seen[w.id] {
		return
	}
	seen[w.id] = true

	named := false
	for _, id := range fields {
		if id == w.id {
			named = true
			break
		}
	}

	r.mu.Lock()
	snap := w.filters.snapshot()
	kids := append([]xproto.Window(nil), w.children...)
	r.mu.Unlock()

	for _, f := range snap {
		if !f.matches(code) {
			continue
		}
		if named || f.any {
			f.fn(ev, nil)
		}
	}

	if len(fields) == 0 {
		return
	}
	for _, kid := range kids {
		if cw := r.Lookup(kid); cw != nil {
			r.fanOut(cw, ev, code, fields, seen)
		}
	}
}

// tops returns the tracked windows without a tracked parent, ordered by id
// so dispatch order is stable.
func (r *Registry) tops() []*Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Window
	for _, w := range r.windows {
		if w.parent == xproto.WindowNone || r.windows[w.parent] == nil {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// spend marks the registry dead and strips every registration, returning the
// stripped filters ordered by window id then registration order. The conn
// already dropped its side of the hook when it broadcast the error.
func (r *Registry) spend(err error) []*winFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead == nil {
		r.dead = err
	}
	r.entries = 0
	r.hooked = false
	ids := make([]xproto.Window, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*winFilter
	for _, id := range ids {
		w := r.windows[id]
		out = append(out, w.filters...)
		w.filters = nil
	}
	return out
}

func (r *Registry) wire() (*xgb.Conn, error) {
	xc := r.c.Wire()
	if xc == nil {
		return nil, errors.New("connection has no wire transport")
	}
	return xc, nil
}

// reply runs a cookie fetch through the connection's reply queue so it is
// serviced in request order alongside every other waiter.
func (r *Registry) reply(ctx context.Context, seq uint16, fetch func() (interface{}, error)) (interface{}, error) {
	return r.c.Reply(ctx, &xkit.Request{Sequence: uint64(seq), Fetch: fetch})
}

// check confirms a checked void request through the reply queue. The extra
// GetInputFocus round trip guarantees a later response on the wire, which is
// what lets the transport settle a void cookie that produced no error.
func (r *Registry) check(ctx context.Context, seq uint16, check func() error) error {
	if xc := r.c.Wire(); xc != nil {
		xproto.GetInputFocus(xc)
	}
	_, err := r.c.Reply(ctx, &xkit.Request{
		Sequence: uint64(seq),
		Fetch:    func() (interface{}, error) { return nil, check() },
	})
	return err
}
