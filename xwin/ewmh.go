package xwin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
)

// sourceIndication 2 marks our client messages as direct user action from a
// pager-class tool, which window managers honor over application requests.
const sourceIndication = 2

// stickyDesktop is the _NET_WM_DESKTOP value for windows on all desktops.
const stickyDesktop = 0xFFFFFFFF

// ActiveWindow returns the wrapper for _NET_ACTIVE_WINDOW on the root, or
// nil when the window manager reports none.
func (r *Registry) ActiveWindow(ctx context.Context) (*Window, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	p, err := root.Property(ctx, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return nil, fmt.Errorf("failed to get active window: %w", err)
	}
	id, ok := p.Window()
	if !ok || id == xproto.WindowNone {
		return nil, nil
	}
	return r.Window(id), nil
}

// ClientList returns wrappers for the window manager's _NET_CLIENT_LIST in
// mapping order. Every listed window becomes tracked by the registry.
func (r *Registry) ClientList(ctx context.Context) ([]*Window, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	p, err := root.Property(ctx, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	ids := p.Windows()
	out := make([]*Window, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Window(id))
	}
	return out, nil
}

// CurrentDesktop returns the zero-indexed current virtual desktop.
func (r *Registry) CurrentDesktop(ctx context.Context) (int, error) {
	root, err := r.Root()
	if err != nil {
		return 0, err
	}
	p, err := root.Property(ctx, "_NET_CURRENT_DESKTOP")
	if err != nil {
		return 0, fmt.Errorf("failed to get current desktop: %w", err)
	}
	v, ok := p.Cardinal()
	if !ok {
		return 0, errors.New("window manager does not expose _NET_CURRENT_DESKTOP")
	}
	return int(v), nil
}

// DesktopCount returns the number of virtual desktops.
func (r *Registry) DesktopCount(ctx context.Context) (int, error) {
	root, err := r.Root()
	if err != nil {
		return 0, err
	}
	p, err := root.Property(ctx, "_NET_NUMBER_OF_DESKTOPS")
	if err != nil {
		return 0, fmt.Errorf("failed to get desktop count: %w", err)
	}
	v, ok := p.Cardinal()
	if !ok {
		return 0, errors.New("window manager does not expose _NET_NUMBER_OF_DESKTOPS")
	}
	return int(v), nil
}

// DesktopNames returns the window manager's desktop names, which may be
// shorter or longer than the desktop count.
func (r *Registry) DesktopNames(ctx context.Context) ([]string, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	p, err := root.Property(ctx, "_NET_DESKTOP_NAMES")
	if err != nil {
		return nil, fmt.Errorf("failed to get desktop names: %w", err)
	}
	return p.Texts(), nil
}

// FindWindow searches the client list for the first window whose name
// contains the given substring, or nil when nothing matches.
func (r *Registry) FindWindow(ctx context.Context, substring string) (*Window, error) {
	if substring == "" {
		return nil, errors.New("window search needs a non-empty substring")
	}
	clients, err := r.ClientList(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range clients {
		name, err := w.Name(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(name, substring) {
			return w, nil
		}
	}
	return nil, nil
}

// Desktop returns the zero-indexed desktop the window sits on, or -1 for
// sticky windows visible on all desktops.
func (w *Window) Desktop(ctx context.Context) (int, error) {
	p, err := w.Property(ctx, "_NET_WM_DESKTOP")
	if err != nil {
		return 0, fmt.Errorf("failed to get window desktop: %w", err)
	}
	v, ok := p.Cardinal()
	if !ok {
		return 0, errors.New("window carries no _NET_WM_DESKTOP")
	}
	if v == stickyDesktop {
		return -1, nil
	}
	return int(v), nil
}

// MoveToDesktop asks the window manager to move the window to the given
// zero-indexed desktop; -1 makes it sticky.
func (w *Window) MoveToDesktop(ctx context.Context, desktop int) error {
	typ, err := w.r.atom(ctx, "_NET_WM_DESKTOP", true)
	if err != nil {
		return err
	}
	target := uint32(desktop)
	if desktop < 0 {
		target = stickyDesktop
	}
	if err := w.SendClientMessage(ctx, typ, target, sourceIndication); err != nil {
		return fmt.Errorf("failed to move window to desktop %d: %w", desktop, err)
	}
	return nil
}

// Activate asks the window manager to raise and focus the window.
func (w *Window) Activate(ctx context.Context) error {
	typ, err := w.r.atom(ctx, "_NET_ACTIVE_WINDOW", true)
	if err != nil {
		return err
	}
	if err := w.SendClientMessage(ctx, typ, sourceIndication); err != nil {
		return fmt.Errorf("failed to activate window: %w", err)
	}
	return nil
}

// CloseGracefully asks the window manager to close the window the polite
// way, giving the application a chance to prompt or clean up.
func (w *Window) CloseGracefully(ctx context.Context) error {
	typ, err := w.r.atom(ctx, "_NET_CLOSE_WINDOW", true)
	if err != nil {
		return err
	}
	if err := w.SendClientMessage(ctx, typ, 0, sourceIndication); err != nil {
		return fmt.Errorf("failed to close window: %w", err)
	}
	return nil
}

// Name returns the window's title, preferring the UTF-8 _NET_WM_NAME over
// the legacy WM_NAME. A window with neither yields the empty string.
func (w *Window) Name(ctx context.Context) (string, error) {
	p, err := w.Property(ctx, "_NET_WM_NAME")
	if err != nil {
		return "", fmt.Errorf("failed to get window name: %w", err)
	}
	if s := p.Text(); s != "" {
		return s, nil
	}
	p, err = w.PropertyAtom(ctx, xproto.AtomWmName)
	if err != nil {
		return "", fmt.Errorf("failed to get window name: %w", err)
	}
	return p.Text(), nil
}

// PID returns the process id advertised via _NET_WM_PID, or 0 when the
// window does not advertise one.
func (w *Window) PID(ctx context.Context) (int, error) {
	p, err := w.Property(ctx, "_NET_WM_PID")
	if err != nil {
		return 0, fmt.Errorf("failed to get window pid: %w", err)
	}
	v, ok := p.Cardinal()
	if !ok {
		return 0, nil
	}
	return int(v), nil
}

// Class returns the window's WM_CLASS instance and class strings.
func (w *Window) Class(ctx context.Context) (instance, class string, err error) {
	p, err := w.PropertyAtom(ctx, xproto.AtomWmClass)
	if err != nil {
		return "", "", fmt.Errorf("failed to get window class: %w", err)
	}
	parts := p.Texts()
	if len(parts) > 0 {
		instance = parts[0]
	}
	if len(parts) > 1 {
		class = parts[1]
	}
	return instance, class, nil
}
