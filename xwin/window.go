package xwin

import (
	"context"
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
)

// Window is the canonical wrapper for one server-side window id. Wrappers
// are created through a Registry and share its lifetime; the parent and
// children links mirror whatever part of the server's tree the registry has
// been told about, and exist purely to route events.
type Window struct {
	r  *Registry
	id xproto.Window

	// guarded by r.mu
	parent   xproto.Window
	children []xproto.Window
	filters  winFilterList
}

// ID returns the server-assigned window id.
func (w *Window) ID() xproto.Window { return w.id }

// Parent returns the tracked parent id, or WindowNone when unknown.
func (w *Window) Parent() xproto.Window {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	return w.parent
}

// Children returns the tracked child ids in stacking order.
func (w *Window) Children() []xproto.Window {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	return append([]xproto.Window(nil), w.children...)
}

// Release drops the wrapper from its registry along with all of its filters.
// The server-side window is untouched; use Destroy for that.
func (w *Window) Release() {
	r := w.r
	r.mu.Lock()
	if r.windows[w.id] != w {
		r.mu.Unlock()
		return
	}
	delete(r.windows, w.id)
	if p := r.windows[w.parent]; p != nil {
		for i, kid := range p.children {
			if kid == w.id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	n := len(w.filters)
	w.filters = nil
	r.releaseLocked(n)
	r.mu.Unlock()
}

// AddEventFilter registers fn under tag for events concerning this window.
// Without options the filter is a wildcard over event codes and fires only
// for events that name the window; ForEvents narrows the codes, AnyWindow
// widens the identity check. Re-adding a tag with ForEvents unions the codes
// into the existing registration; re-adding a wildcard tag fails with
// ErrDuplicateFilter, and mixing wildcard with selective registrations fails
// with ErrSelectorMismatch. Once the connection has died, adds fail with its
// fatal error.
func (w *Window) AddEventFilter(tag interface{}, fn xkit.FilterFunc, opts ...FilterOption) error {
	if tag == nil || fn == nil {
		return errors.New("window filter needs a tag and a callback")
	}
	cfg := applyOptions(opts)
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return xkit.ErrClosed
	}
	grew, err := w.filters.merge(tag, fn, cfg)
	if err != nil {
		return err
	}
	if !grew {
		return nil
	}
	if err := r.retainLocked(); err != nil {
		w.filters.discard(tag)
		return err
	}
	return nil
}

// RemoveEventFilter deregisters tag. A plain call requires a wildcard
// registration and drops it; ForEvents subtracts codes from a selective
// registration, dropping it once the set drains. Unknown tags fail with
// ErrFilterNotFound, selector shape mismatches with ErrSelectorMismatch.
func (w *Window) RemoveEventFilter(tag interface{}, opts ...FilterOption) error {
	cfg := applyOptions(opts)
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()
	gone, err := w.filters.subtract(tag, cfg.codes)
	if err != nil {
		return err
	}
	if gone {
		r.releaseLocked(1)
	}
	return nil
}

// DiscardEventFilter drops the registration under tag whatever its selector
// shape, and is a no-op for unknown tags.
func (w *Window) DiscardEventFilter(tag interface{}) {
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.filters.discard(tag) {
		r.releaseLocked(1)
	}
}

// WaitForEvent blocks until an event with one of the given codes names this
// window (any code when none are given). It returns early if ctx ends or the
// connection dies.
func (w *Window) WaitForEvent(ctx context.Context, codes ...byte) (xgb.Event, error) {
	type delivery struct {
		ev  xgb.Event
		err error
	}
	ch := make(chan delivery, 1)
	var opts []FilterOption
	if len(codes) > 0 {
		opts = append(opts, ForEvents(codes...))
	}
	err := w.AddEventFilter(ch, func(ev xgb.Event, err error) {
		select {
		case ch <- delivery{ev, err}:
		default:
		}
	}, opts...)
	if err != nil {
		return nil, err
	}
	defer w.DiscardEventFilter(ch)
	select {
	case d := <-ch:
		return d.ev, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateWindow asks the server for a new window under parent (the default
// screen's root when parent is nil) with eventMask selected on it, and
// returns the tracked wrapper. Depth, visual and border are inherited.
func (r *Registry) CreateWindow(ctx context.Context, parent *Window, x, y, width, height int, eventMask uint32) (*Window, error) {
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	if parent == nil {
		parent, err = r.Root()
		if err != nil {
			return nil, err
		}
	}
	id, err := xproto.NewWindowId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}
	var (
		mask   uint32
		values []uint32
	)
	if eventMask != 0 {
		mask = xproto.CwEventMask
		values = []uint32{eventMask}
	}
	ck := xproto.CreateWindowChecked(
		xc,
		0, // depth: CopyFromParent
		id,
		parent.id,
		int16(x), int16(y),
		uint16(width), uint16(height),
		0, // border_width
		xproto.WindowClassInputOutput,
		xproto.Visualid(0), // CopyFromParent
		mask,
		values,
	)
	if err := r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	w := r.Window(id)
	r.mu.Lock()
	w.parent = parent.id
	if p := r.windows[parent.id]; p != nil {
		p.children = append(p.children, id)
	}
	r.mu.Unlock()
	return w, nil
}

// Map makes the window viewable.
func (w *Window) Map(ctx context.Context) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.MapWindowChecked(xc, w.id)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	return nil
}

// Unmap hides the window.
func (w *Window) Unmap(ctx context.Context) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.UnmapWindowChecked(xc, w.id)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to unmap window: %w", err)
	}
	return nil
}

// Destroy destroys the server-side window and releases the wrapper.
func (w *Window) Destroy(ctx context.Context) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.DestroyWindowChecked(xc, w.id)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to destroy window: %w", err)
	}
	w.Release()
	return nil
}

// Configure issues a raw ConfigureWindow. Values follow the mask's bit order.
func (w *Window) Configure(ctx context.Context, mask uint16, values ...uint32) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.ConfigureWindowChecked(xc, w.id, mask, values)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to configure window: %w", err)
	}
	return nil
}

// MoveResize moves and resizes the window in one request.
func (w *Window) MoveResize(ctx context.Context, x, y, width, height int) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY |
		xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	return w.Configure(ctx, mask,
		uint32(int32(x)), uint32(int32(y)), uint32(width), uint32(height))
}

// Raise restacks the window above its siblings.
func (w *Window) Raise(ctx context.Context) error {
	return w.Configure(ctx, xproto.ConfigWindowStackMode, xproto.StackModeAbove)
}

// ChangeAttributes issues a raw ChangeWindowAttributes. Values follow the
// mask's bit order.
func (w *Window) ChangeAttributes(ctx context.Context, mask uint32, values ...uint32) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.ChangeWindowAttributesChecked(xc, w.id, mask, values)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to change window attributes: %w", err)
	}
	return nil
}

// SelectInput replaces the event mask this client selects on the window.
func (w *Window) SelectInput(ctx context.Context, eventMask uint32) error {
	return w.ChangeAttributes(ctx, xproto.CwEventMask, eventMask)
}

// Focus gives the window the input focus.
func (w *Window) Focus(ctx context.Context) error {
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.SetInputFocusChecked(xc, xproto.InputFocusPointerRoot, w.id, xproto.TimeCurrentTime)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to focus window: %w", err)
	}
	return nil
}

// Geometry is a window's position and size relative to its parent.
type Geometry struct {
	X           int
	Y           int
	Width       int
	Height      int
	BorderWidth int
	Depth       byte
}

// Geometry fetches the window's current geometry.
func (w *Window) Geometry(ctx context.Context) (Geometry, error) {
	xc, err := w.r.wire()
	if err != nil {
		return Geometry{}, err
	}
	ck := xproto.GetGeometry(xc, xproto.Drawable(w.id))
	v, err := w.r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to get window geometry: %w", err)
	}
	reply := v.(*xproto.GetGeometryReply)
	return Geometry{
		X:           int(reply.X),
		Y:           int(reply.Y),
		Width:       int(reply.Width),
		Height:      int(reply.Height),
		BorderWidth: int(reply.BorderWidth),
		Depth:       reply.Depth,
	}, nil
}

// AdoptChildren queries the server for the window's children, replaces the
// tracked links with the live tree, and returns wrappers for the children in
// stacking order. Adopted children take part in event fan-out from then on.
func (w *Window) AdoptChildren(ctx context.Context) ([]*Window, error) {
	xc, err := w.r.wire()
	if err != nil {
		return nil, err
	}
	ck := xproto.QueryTree(xc, w.id)
	v, err := w.r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}
	reply := v.(*xproto.QueryTreeReply)
	r := w.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, xkit.ErrClosed
	}
	w.parent = reply.Parent
	w.children = w.children[:0]
	out := make([]*Window, 0, len(reply.Children))
	for _, id := range reply.Children {
		kid := r.windowLocked(id)
		kid.parent = w.id
		w.children = append(w.children, id)
		out = append(out, kid)
	}
	return out, nil
}

// SendClientMessage broadcasts a 32-bit-format client message about this
// window to the root window, the way EWMH asks pagers and window managers to
// act. At most five data words fit in one message.
func (w *Window) SendClientMessage(ctx context.Context, typ xproto.Atom, data ...uint32) error {
	if len(data) > 5 {
		return errors.New("client message carries at most five data words")
	}
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	root, err := w.r.Root()
	if err != nil {
		return err
	}
	words := make([]uint32, 5)
	copy(words, data)
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: w.id,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(words),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	ck := xproto.SendEventChecked(xc, false, root.id, mask, string(ev.Bytes()))
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to send client message: %w", err)
	}
	return nil
}
