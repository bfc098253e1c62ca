package xwin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// propertyWords is how many 32-bit units one GetProperty round fetches.
// Longer properties are paged in by following BytesAfter.
const propertyWords = 4096

// Property is a fetched window property: the type atom the owner declared,
// the unit format (8, 16 or 32 bits) and the raw bytes.
type Property struct {
	Type   xproto.Atom
	Format byte
	Data   []byte
}

// Property fetches the named property from the window. A window without the
// property (or a name interned by nobody) yields (nil, nil); that is an
// expected miss, not an error.
func (w *Window) Property(ctx context.Context, name string) (*Property, error) {
	prop, err := w.r.atom(ctx, name, false)
	if err != nil {
		return nil, err
	}
	if prop == xproto.AtomNone {
		return nil, nil
	}
	return w.PropertyAtom(ctx, prop)
}

// PropertyAtom is Property with a pre-resolved atom.
func (w *Window) PropertyAtom(ctx context.Context, prop xproto.Atom) (*Property, error) {
	xc, err := w.r.wire()
	if err != nil {
		return nil, err
	}
	var out *Property
	offset := uint32(0)
	for {
		ck := xproto.GetProperty(xc, false, w.id, prop, xproto.GetPropertyTypeAny, offset, propertyWords)
		v, err := w.r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
		if err != nil {
			return nil, fmt.Errorf("failed to get property: %w", err)
		}
		reply := v.(*xproto.GetPropertyReply)
		if reply.Format == 0 {
			return nil, nil
		}
		if out == nil {
			out = &Property{Type: reply.Type, Format: reply.Format}
		}
		out.Data = append(out.Data, reply.Value...)
		if reply.BytesAfter == 0 {
			return out, nil
		}
		offset += uint32(len(reply.Value)) / 4
	}
}

// ReplaceProperty writes data as the new value of prop.
func (w *Window) ReplaceProperty(ctx context.Context, prop, typ xproto.Atom, format byte, data []byte) error {
	return w.changeProperty(ctx, xproto.PropModeReplace, prop, typ, format, data)
}

// AppendProperty appends data to prop's current value. Type and format must
// match the existing value or the server rejects the request.
func (w *Window) AppendProperty(ctx context.Context, prop, typ xproto.Atom, format byte, data []byte) error {
	return w.changeProperty(ctx, xproto.PropModeAppend, prop, typ, format, data)
}

func (w *Window) changeProperty(ctx context.Context, mode byte, prop, typ xproto.Atom, format byte, data []byte) error {
	if format != 8 && format != 16 && format != 32 {
		return errors.New("property format must be 8, 16 or 32")
	}
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	units := uint32(len(data)) / uint32(format/8)
	ck := xproto.ChangePropertyChecked(xc, mode, w.id, prop, typ, format, units, data)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to change property: %w", err)
	}
	return nil
}

// SetString writes a UTF8_STRING property under the given name.
func (w *Window) SetString(ctx context.Context, name, value string) error {
	prop, err := w.r.atom(ctx, name, true)
	if err != nil {
		return err
	}
	typ, err := w.r.atom(ctx, "UTF8_STRING", true)
	if err != nil {
		return err
	}
	return w.ReplaceProperty(ctx, prop, typ, 8, []byte(value))
}

// SetCardinals writes a CARDINAL property under the given name.
func (w *Window) SetCardinals(ctx context.Context, name string, values ...uint32) error {
	prop, err := w.r.atom(ctx, name, true)
	if err != nil {
		return err
	}
	data := make([]byte, 4*len(values))
	for i, v := range values {
		xgb.Put32(data[4*i:], v)
	}
	return w.ReplaceProperty(ctx, prop, xproto.AtomCardinal, 32, data)
}

// DeleteProperty removes the named property. Deleting a property the window
// does not carry is a no-op.
func (w *Window) DeleteProperty(ctx context.Context, name string) error {
	prop, err := w.r.atom(ctx, name, false)
	if err != nil {
		return err
	}
	if prop == xproto.AtomNone {
		return nil
	}
	xc, err := w.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.DeletePropertyChecked(xc, w.id, prop)
	if err := w.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	return nil
}

// atom resolves a name through the connection's atom cache.
func (r *Registry) atom(ctx context.Context, name string, create bool) (xproto.Atom, error) {
	a := r.c.Atoms()
	if a == nil {
		return xproto.AtomNone, errors.New("connection has no atom cache")
	}
	return a.Atom(ctx, name, create)
}

// Cardinals decodes a 32-bit property as unsigned words.
func (p *Property) Cardinals() []uint32 {
	if p == nil || p.Format != 32 {
		return nil
	}
	out := make([]uint32, 0, len(p.Data)/4)
	for i := 0; i+4 <= len(p.Data); i += 4 {
		out = append(out, xgb.Get32(p.Data[i:]))
	}
	return out
}

// Cardinal decodes the first word of a 32-bit property.
func (p *Property) Cardinal() (uint32, bool) {
	vals := p.Cardinals()
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// Windows decodes a 32-bit property as window ids.
func (p *Property) Windows() []xproto.Window {
	vals := p.Cardinals()
	if vals == nil {
		return nil
	}
	out := make([]xproto.Window, len(vals))
	for i, v := range vals {
		out[i] = xproto.Window(v)
	}
	return out
}

// Window decodes the first window id of a 32-bit property.
func (p *Property) Window() (xproto.Window, bool) {
	v, ok := p.Cardinal()
	return xproto.Window(v), ok
}

// Atoms decodes a 32-bit property as atoms.
func (p *Property) Atoms() []xproto.Atom {
	vals := p.Cardinals()
	if vals == nil {
		return nil
	}
	out := make([]xproto.Atom, len(vals))
	for i, v := range vals {
		out[i] = xproto.Atom(v)
	}
	return out
}

// Text decodes an 8-bit property as a string, stopping at the first NUL.
func (p *Property) Text() string {
	if p == nil || p.Format != 8 {
		return ""
	}
	s := string(p.Data)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// Texts decodes an 8-bit property as a NUL-separated string list, the layout
// WM_CLASS and _NET_DESKTOP_NAMES use.
func (p *Property) Texts() []string {
	if p == nil || p.Format != 8 {
		return nil
	}
	parts := strings.Split(strings.TrimRight(string(p.Data), "\x00"), "\x00")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	return parts
}
