package xkit

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// FilterFunc observes events dispatched by a Conn. It runs on the dispatcher
// goroutine. After a fatal connection error every registered filter is
// invoked exactly once with a nil event and the error; that is how waiters
// built on filters learn the connection died.
type FilterFunc func(ev xgb.Event, err error)

type filterEntry struct {
	tag   interface{}
	fn    FilterFunc
	codes map[byte]struct{} // nil matches every event code
}

func (e *filterEntry) matches(code byte) bool {
	if e.codes == nil {
		return true
	}
	_, ok := e.codes[code]
	return ok
}

// filterList is an ordered registry keyed by caller-supplied tags. Mutation
// happens under the owning Conn's mutex; dispatch works off snapshots, so
// removing an entry mid-dispatch never affects the pass already underway.
type filterList struct {
	entries []*filterEntry
}

func (l *filterList) index(tag interface{}) int {
	for i, e := range l.entries {
		if e.tag == tag {
			return i
		}
	}
	return -1
}

func (l *filterList) add(tag interface{}, fn FilterFunc, codes []byte) error {
	if l.index(tag) >= 0 {
		return ErrDuplicateFilter
	}
	l.entries = append(l.entries, &filterEntry{tag: tag, fn: fn, codes: codeSet(codes)})
	return nil
}

func (l *filterList) remove(tag interface{}) error {
	i := l.index(tag)
	if i < 0 {
		return ErrFilterNotFound
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return nil
}

// snapshot copies the entry list in registration order.
func (l *filterList) snapshot() []*filterEntry {
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]*filterEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *filterList) len() int { return len(l.entries) }

func codeSet(codes []byte) map[byte]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[byte]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// EventCode returns the X11 response-type code of ev with the send-event bit
// masked off. Core protocol events map directly; anything else (extension
// events) falls back to the wire encoding.
func EventCode(ev xgb.Event) byte {
	switch ev.(type) {
	case xproto.KeyPressEvent:
		return xproto.KeyPress
	case xproto.KeyReleaseEvent:
		return xproto.KeyRelease
	case xproto.ButtonPressEvent:
		return xproto.ButtonPress
	case xproto.ButtonReleaseEvent:
		return xproto.ButtonRelease
	case xproto.MotionNotifyEvent:
		return xproto.MotionNotify
	case xproto.EnterNotifyEvent:
		return xproto.EnterNotify
	case xproto.LeaveNotifyEvent:
		return xproto.LeaveNotify
	case xproto.FocusInEvent:
		return xproto.FocusIn
	case xproto.FocusOutEvent:
		return xproto.FocusOut
	case xproto.KeymapNotifyEvent:
		return xproto.KeymapNotify
	case xproto.ExposeEvent:
		return xproto.Expose
	case xproto.GraphicsExposureEvent:
		return xproto.GraphicsExposure
	case xproto.NoExposureEvent:
		return xproto.NoExposure
	case xproto.VisibilityNotifyEvent:
		return xproto.VisibilityNotify
	case xproto.CreateNotifyEvent:
		return xproto.CreateNotify
	case xproto.DestroyNotifyEvent:
		return xproto.DestroyNotify
	case xproto.UnmapNotifyEvent:
		return xproto.UnmapNotify
	case xproto.MapNotifyEvent:
		return xproto.MapNotify
	case xproto.MapRequestEvent:
		return xproto.MapRequest
	case xproto.ReparentNotifyEvent:
		return xproto.ReparentNotify
	case xproto.ConfigureNotifyEvent:
		return xproto.ConfigureNotify
	case xproto.ConfigureRequestEvent:
		return xproto.ConfigureRequest
	case xproto.GravityNotifyEvent:
		return xproto.GravityNotify
	case xproto.ResizeRequestEvent:
		return xproto.ResizeRequest
	case xproto.CirculateNotifyEvent:
		return xproto.CirculateNotify
	case xproto.CirculateRequestEvent:
		return xproto.CirculateRequest
	case xproto.PropertyNotifyEvent:
		return xproto.PropertyNotify
	case xproto.SelectionClearEvent:
		return xproto.SelectionClear
	case xproto.SelectionRequestEvent:
		return xproto.SelectionRequest
	case xproto.SelectionNotifyEvent:
		return xproto.SelectionNotify
	case xproto.ColormapNotifyEvent:
		return xproto.ColormapNotify
	case xproto.ClientMessageEvent:
		return xproto.ClientMessage
	case xproto.MappingNotifyEvent:
		return xproto.MappingNotify
	}
	if b := ev.Bytes(); len(b) > 0 {
		return b[0] &^ 0x80
	}
	return 0
}
