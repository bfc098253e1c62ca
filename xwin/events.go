package xwin

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// windowFields extracts the window-identity fields an event carries (the
// protocol names them window, event, and child depending on the event kind)
// with None entries dropped. Events that name no window return nil, which
// also stops the fan-out from descending into subtrees.
func windowFields(ev xgb.Event) []xproto.Window {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		return nonNone(e.Event, e.Child)
	case xproto.KeyReleaseEvent:
		return nonNone(e.Event, e.Child)
	case xproto.ButtonPressEvent:
		return nonNone(e.Event, e.Child)
	case xproto.ButtonReleaseEvent:
		return nonNone(e.Event, e.Child)
	case xproto.MotionNotifyEvent:
		return nonNone(e.Event, e.Child)
	case xproto.EnterNotifyEvent:
		return nonNone(e.Event, e.Child)
	case xproto.LeaveNotifyEvent:
		return nonNone(e.Event, e.Child)
	case xproto.FocusInEvent:
		return nonNone(e.Event)
	case xproto.FocusOutEvent:
		return nonNone(e.Event)
	case xproto.ExposeEvent:
		return nonNone(e.Window)
	case xproto.VisibilityNotifyEvent:
		return nonNone(e.Window)
	case xproto.CreateNotifyEvent:
		return nonNone(e.Window)
	case xproto.DestroyNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.UnmapNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.MapNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.MapRequestEvent:
		return nonNone(e.Window)
	case xproto.ReparentNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.ConfigureNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.ConfigureRequestEvent:
		return nonNone(e.Window)
	case xproto.GravityNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.ResizeRequestEvent:
		return nonNone(e.Window)
	case xproto.CirculateNotifyEvent:
		return nonNone(e.Event, e.Window)
	case xproto.CirculateRequestEvent:
		return nonNone(e.Event, e.Window)
	case xproto.PropertyNotifyEvent:
		return nonNone(e.Window)
	case xproto.ColormapNotifyEvent:
		return nonNone(e.Window)
	case xproto.ClientMessageEvent:
		return nonNone(e.Window)
	}
	return nil
}

func nonNone(ids ...xproto.Window) []xproto.Window {
	out := ids[:0]
	for _, id := range ids {
		if id != xproto.WindowNone {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
