package xwin

import (
	"context"
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xrect"

	"github.com/1broseidon/xkit"
)

// Monitor is one active output as reported by RandR.
type Monitor struct {
	Index  int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the monitor's geometry in root coordinates.
func (m Monitor) Rect() xrect.Rect {
	return xrect.New(m.X, m.Y, m.Width, m.Height)
}

func (r *Registry) initRandR() error {
	r.randrOnce.Do(func() {
		xc, err := r.wire()
		if err != nil {
			r.randrErr = err
			return
		}
		if err := randr.Init(xc); err != nil {
			r.randrErr = fmt.Errorf("failed to init randr: %w", err)
		}
	})
	return r.randrErr
}

// Monitors enumerates the active CRTCs on the default screen. Disabled
// outputs are skipped; a CRTC whose info cannot be read is skipped rather
// than failing the whole enumeration.
func (r *Registry) Monitors(ctx context.Context) ([]Monitor, error) {
	if err := r.initRandR(); err != nil {
		return nil, err
	}
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	ck := randr.GetScreenResourcesCurrent(xc, root.id)
	v, err := r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	res := v.(*randr.GetScreenResourcesCurrentReply)

	var monitors []Monitor
	for _, crtc := range res.Crtcs {
		ick := randr.GetCrtcInfo(xc, crtc, res.ConfigTimestamp)
		iv, err := r.reply(ctx, ick.Sequence, func() (interface{}, error) { return ick.Reply() })
		if err != nil {
			var cerr *xkit.ConnectionError
			if errors.As(err, &cerr) || ctx.Err() != nil {
				return nil, fmt.Errorf("failed to get crtc info: %w", err)
			}
			continue
		}
		info := iv.(*randr.GetCrtcInfoReply)
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("output-%d", len(monitors))
		ock := randr.GetOutputInfo(xc, info.Outputs[0], res.ConfigTimestamp)
		if ov, err := r.reply(ctx, ock.Sequence, func() (interface{}, error) { return ock.Reply() }); err == nil {
			if n := string(ov.(*randr.GetOutputInfoReply).Name); n != "" {
				name = n
			}
		}

		monitors = append(monitors, Monitor{
			Index:  len(monitors),
			Name:   name,
			X:      int(info.X),
			Y:      int(info.Y),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}
	return monitors, nil
}

// MonitorForWindow picks the monitor sharing the most area with the window,
// falling back to the monitor under the pointer and then to the first one.
func (r *Registry) MonitorForWindow(ctx context.Context, w *Window) (Monitor, error) {
	monitors, err := r.Monitors(ctx)
	if err != nil {
		return Monitor{}, err
	}
	if len(monitors) == 0 {
		return Monitor{}, errors.New("no active monitors")
	}
	if w != nil {
		if rect, err := r.rootRect(ctx, w); err == nil {
			best, bestArea := Monitor{}, 0
			for _, m := range monitors {
				if area := xrect.IntersectArea(rect, m.Rect()); area > bestArea {
					best, bestArea = m, area
				}
			}
			if bestArea > 0 {
				return best, nil
			}
		}
	}
	if m, ok := r.monitorForPointer(ctx, monitors); ok {
		return m, nil
	}
	return monitors[0], nil
}

// rootRect returns the window's geometry translated into root coordinates.
func (r *Registry) rootRect(ctx context.Context, w *Window) (xrect.Rect, error) {
	geom, err := w.Geometry(ctx)
	if err != nil {
		return nil, err
	}
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	xc, err := r.wire()
	if err != nil {
		return nil, err
	}
	ck := xproto.TranslateCoordinates(xc, w.id, root.id, 0, 0)
	v, err := r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return nil, fmt.Errorf("failed to translate window coordinates: %w", err)
	}
	tr := v.(*xproto.TranslateCoordinatesReply)
	return xrect.New(int(tr.DstX), int(tr.DstY), geom.Width, geom.Height), nil
}

func (r *Registry) monitorForPointer(ctx context.Context, monitors []Monitor) (Monitor, bool) {
	root, err := r.Root()
	if err != nil {
		return Monitor{}, false
	}
	xc, err := r.wire()
	if err != nil {
		return Monitor{}, false
	}
	ck := xproto.QueryPointer(xc, root.id)
	v, err := r.reply(ctx, ck.Sequence, func() (interface{}, error) { return ck.Reply() })
	if err != nil {
		return Monitor{}, false
	}
	p := v.(*xproto.QueryPointerReply)
	at := xrect.New(int(p.RootX), int(p.RootY), 1, 1)
	for _, m := range monitors {
		if xrect.IntersectArea(at, m.Rect()) > 0 {
			return m, true
		}
	}
	return Monitor{}, false
}
