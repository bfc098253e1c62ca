package xwin

import (
	"context"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xcursor"
)

// Pixmap is an off-screen drawable owned by the caller. It is not tracked by
// the registry arena; free it explicitly.
type Pixmap struct {
	r  *Registry
	id xproto.Pixmap
}

// CreatePixmap allocates a width x height pixmap of the given depth on the
// same screen as target (the default root when target is nil).
func (r *Registry) CreatePixmap(ctx context.Context, target *Window, depth byte, width, height int) (*Pixmap, error) {
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	if target == nil {
		target, err = r.Root()
		if err != nil {
			return nil, err
		}
	}
	id, err := xproto.NewPixmapId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pixmap id: %w", err)
	}
	ck := xproto.CreatePixmapChecked(xc, depth, id, xproto.Drawable(target.id), uint16(width), uint16(height))
	if err := r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return nil, fmt.Errorf("failed to create pixmap: %w", err)
	}
	return &Pixmap{r: r, id: id}, nil
}

// ID returns the server-assigned pixmap id.
func (p *Pixmap) ID() xproto.Pixmap { return p.id }

// Free releases the server-side pixmap.
func (p *Pixmap) Free(ctx context.Context) error {
	xc, err := p.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.FreePixmapChecked(xc, p.id)
	if err := p.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to free pixmap: %w", err)
	}
	return nil
}

// GContext is a server-side graphics context.
type GContext struct {
	r  *Registry
	id xproto.Gcontext
}

// CreateGC allocates a graphics context usable with drawables on the same
// screen as target (the default root when target is nil). Values follow the
// mask's bit order.
func (r *Registry) CreateGC(ctx context.Context, target *Window, mask uint32, values ...uint32) (*GContext, error) {
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	if target == nil {
		target, err = r.Root()
		if err != nil {
			return nil, err
		}
	}
	id, err := xproto.NewGcontextId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate gcontext id: %w", err)
	}
	ck := xproto.CreateGCChecked(xc, id, xproto.Drawable(target.id), mask, values)
	if err := r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return nil, fmt.Errorf("failed to create gcontext: %w", err)
	}
	return &GContext{r: r, id: id}, nil
}

// ID returns the server-assigned gcontext id.
func (g *GContext) ID() xproto.Gcontext { return g.id }

// Change updates components of the graphics context. Values follow the
// mask's bit order.
func (g *GContext) Change(ctx context.Context, mask uint32, values ...uint32) error {
	xc, err := g.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.ChangeGCChecked(xc, g.id, mask, values)
	if err := g.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to change gcontext: %w", err)
	}
	return nil
}

// Free releases the server-side graphics context.
func (g *GContext) Free(ctx context.Context) error {
	xc, err := g.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.FreeGCChecked(xc, g.id)
	if err := g.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to free gcontext: %w", err)
	}
	return nil
}

// Cursor is a server-side cursor built from the standard cursor font.
type Cursor struct {
	r  *Registry
	id xproto.Cursor
}

// CreateGlyphCursor builds a black-on-white cursor from the standard cursor
// font. Glyph ids are the cursor-font constants from the xcursor package;
// zero means the default left pointer.
func (r *Registry) CreateGlyphCursor(ctx context.Context, glyph uint16) (*Cursor, error) {
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	if glyph == 0 {
		glyph = xcursor.LeftPtr
	}
	font, err := xproto.NewFontId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate font id: %w", err)
	}
	id, err := xproto.NewCursorId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate cursor id: %w", err)
	}
	const fontName = "cursor"
	ck := xproto.OpenFontChecked(xc, font, uint16(len(fontName)), fontName)
	if err := r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return nil, fmt.Errorf("failed to open cursor font: %w", err)
	}
	// The cursor font pairs each shape with its mask at the next glyph.
	cck := xproto.CreateGlyphCursorChecked(xc, id, font, font, glyph, glyph+1,
		0, 0, 0, 0xffff, 0xffff, 0xffff)
	cerr := r.check(ctx, cck.Sequence, cck.Check)
	xproto.CloseFont(xc, font)
	if cerr != nil {
		return nil, fmt.Errorf("failed to create glyph cursor: %w", cerr)
	}
	return &Cursor{r: r, id: id}, nil
}

// ID returns the server-assigned cursor id.
func (c *Cursor) ID() xproto.Cursor { return c.id }

// Free releases the server-side cursor.
func (c *Cursor) Free(ctx context.Context) error {
	xc, err := c.r.wire()
	if err != nil {
		return err
	}
	ck := xproto.FreeCursorChecked(xc, c.id)
	if err := c.r.check(ctx, ck.Sequence, ck.Check); err != nil {
		return fmt.Errorf("failed to free cursor: %w", err)
	}
	return nil
}

// DefineCursor sets the cursor shown while the pointer is over the window;
// nil restores the parent's cursor.
func (w *Window) DefineCursor(ctx context.Context, c *Cursor) error {
	id := xproto.Cursor(xproto.CursorNone)
	if c != nil {
		id = c.id
	}
	return w.ChangeAttributes(ctx, xproto.CwCursor, uint32(id))
}
