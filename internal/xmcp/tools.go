package xmcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/evlog"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/keymap"
	"github.com/1broseidon/xkit/xwin"
)

const (
	defaultWatchEvents = 10
	maxWatchEvents     = 100
	defaultWatchWindow = 10 * time.Second

	// maxTreeNodes caps a window_tree walk; nested toolkits can hold
	// thousands of windows and the result goes over a JSON pipe.
	maxTreeNodes = 2048
)

func (s *Server) handleListWindows(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	clients, err := s.reg.ClientList(ctx)
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}

	var activeID xproto.Window
	if active, err := s.reg.ActiveWindow(ctx); err == nil && active != nil {
		activeID = active.ID()
	}

	out := ListWindowsOutput{Windows: make([]WindowInfo, 0, len(clients))}
	for _, w := range clients {
		info := WindowInfo{Window: uint32(w.ID()), Desktop: -1}
		if name, err := w.Name(ctx); err == nil {
			info.Name = name
		}
		if instance, class, err := w.Class(ctx); err == nil {
			info.Instance, info.Class = instance, class
		}
		if desktop, err := w.Desktop(ctx); err == nil {
			info.Desktop = desktop
		}
		info.Active = w.ID() == activeID && activeID != xproto.WindowNone
		out.Windows = append(out.Windows, info)
	}
	return nil, out, nil
}

func (s *Server) handleWindowTree(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowTreeInput) (*mcpsdk.CallToolResult, WindowTreeOutput, error) {
	start, err := s.windowOrRoot(args.Window)
	if err != nil {
		return nil, WindowTreeOutput{}, err
	}

	out := WindowTreeOutput{}
	var walk func(w *xwin.Window, depth int) error
	walk = func(w *xwin.Window, depth int) error {
		if len(out.Nodes) >= maxTreeNodes {
			return nil
		}
		node := TreeNode{
			Window: uint32(w.ID()),
			Parent: uint32(w.Parent()),
			Depth:  depth,
		}
		if name, err := w.Name(ctx); err == nil {
			node.Name = name
		}
		out.Nodes = append(out.Nodes, node)

		if args.Depth > 0 && depth+1 > args.Depth {
			return nil
		}
		children, err := w.AdoptChildren(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(start, 0); err != nil {
		return nil, WindowTreeOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleListMonitors(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListMonitorsInput) (*mcpsdk.CallToolResult, ListMonitorsOutput, error) {
	monitors, err := s.reg.Monitors(ctx)
	if err != nil {
		return nil, ListMonitorsOutput{}, err
	}
	out := ListMonitorsOutput{Monitors: make([]MonitorInfo, 0, len(monitors))}
	for _, m := range monitors {
		out.Monitors = append(out.Monitors, MonitorInfo{
			Index:  m.Index,
			Name:   m.Name,
			X:      m.X,
			Y:      m.Y,
			Width:  m.Width,
			Height: m.Height,
		})
	}
	return nil, out, nil
}

func (s *Server) handleInternAtom(ctx context.Context, _ *mcpsdk.CallToolRequest, args InternAtomInput) (*mcpsdk.CallToolResult, InternAtomOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, InternAtomOutput{}, errors.New("name is required")
	}
	atom, err := s.conn.Atoms().Atom(ctx, name, args.Create)
	if err != nil {
		return nil, InternAtomOutput{}, err
	}
	if args.Create {
		s.logTool("intern_atom", map[string]interface{}{"name": name, "atom": uint32(atom)})
	}
	return nil, InternAtomOutput{Atom: uint32(atom), Found: atom != xproto.AtomNone}, nil
}

func (s *Server) handleAtomName(ctx context.Context, _ *mcpsdk.CallToolRequest, args AtomNameInput) (*mcpsdk.CallToolResult, AtomNameOutput, error) {
	if args.Atom == 0 {
		return nil, AtomNameOutput{}, errors.New("atom is required")
	}
	name, err := s.conn.Atoms().Name(ctx, xproto.Atom(args.Atom))
	if err != nil {
		return nil, AtomNameOutput{}, err
	}
	return nil, AtomNameOutput{Name: name}, nil
}

func (s *Server) handleGetProperty(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetPropertyInput) (*mcpsdk.CallToolResult, GetPropertyOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, GetPropertyOutput{}, errors.New("name is required")
	}
	w, err := s.windowOrRoot(args.Window)
	if err != nil {
		return nil, GetPropertyOutput{}, err
	}
	prop, err := w.Property(ctx, name)
	if err != nil {
		return nil, GetPropertyOutput{}, err
	}
	if prop == nil {
		return nil, GetPropertyOutput{Found: false}, nil
	}
	return nil, s.describeProperty(prop), nil
}

// describeProperty decodes a fetched property into the tool output. Atom
// names come from the cache only; the property fetch itself interned the
// names this connection has seen, and a cache miss degrades to the raw id.
func (s *Server) describeProperty(prop *xwin.Property) GetPropertyOutput {
	out := GetPropertyOutput{
		Found:  true,
		Type:   uint32(prop.Type),
		Format: int(prop.Format),
		Bytes:  len(prop.Data),
	}
	if name, ok := s.conn.Atoms().CachedName(prop.Type); ok {
		out.TypeName = name
	}
	switch prop.Format {
	case 8:
		out.Text = prop.Text()
		if texts := prop.Texts(); len(texts) > 1 {
			out.Texts = texts
		}
	case 32:
		switch prop.Type {
		case xproto.AtomAtom:
			for _, atom := range prop.Atoms() {
				if name, ok := s.conn.Atoms().CachedName(atom); ok {
					out.Atoms = append(out.Atoms, name)
				} else {
					out.Atoms = append(out.Atoms, fmt.Sprintf("%d", atom))
				}
			}
		case xproto.AtomWindow:
			for _, id := range prop.Windows() {
				out.Windows = append(out.Windows, uint32(id))
			}
		default:
			out.Cardinals = prop.Cardinals()
		}
	}
	return out
}

func (s *Server) handleSendMessage(ctx context.Context, _ *mcpsdk.CallToolRequest, args SendMessageInput) (*mcpsdk.CallToolResult, SendMessageOutput, error) {
	if args.Window == 0 {
		return nil, SendMessageOutput{}, errors.New("window is required")
	}
	typeName := strings.TrimSpace(args.Type)
	if typeName == "" {
		return nil, SendMessageOutput{}, errors.New("type is required")
	}
	if len(args.Data) > 5 {
		return nil, SendMessageOutput{}, fmt.Errorf("client messages carry at most 5 data words, got %d", len(args.Data))
	}
	typ, err := s.conn.Atoms().Atom(ctx, typeName, true)
	if err != nil {
		return nil, SendMessageOutput{}, err
	}
	w := s.reg.Window(xproto.Window(args.Window))
	if err := w.SendClientMessage(ctx, typ, args.Data...); err != nil {
		return nil, SendMessageOutput{}, err
	}
	s.logTool("send_message", map[string]interface{}{
		"window": args.Window,
		"type":   typeName,
		"words":  len(args.Data),
	})
	return nil, SendMessageOutput{Sent: true}, nil
}

func (s *Server) handleWatchEvents(ctx context.Context, _ *mcpsdk.CallToolRequest, args WatchEventsInput) (*mcpsdk.CallToolResult, WatchEventsOutput, error) {
	max := args.MaxEvents
	if max <= 0 {
		max = defaultWatchEvents
	}
	if max > maxWatchEvents {
		max = maxWatchEvents
	}
	window := defaultWatchWindow
	if args.Timeout > 0 {
		window = time.Duration(args.Timeout) * time.Second
	}
	codes, err := s.cfg.ResolveEvents(args.Events)
	if err != nil {
		return nil, WatchEventsOutput{}, err
	}

	type delivery struct {
		ev  xgb.Event
		err error
	}
	ch := make(chan delivery, max)
	fn := func(ev xgb.Event, err error) {
		select {
		case ch <- delivery{ev, err}:
		default:
		}
	}

	// The channel doubles as the filter tag; each call gets its own.
	if args.Window != xproto.WindowNone {
		w := s.reg.Window(xproto.Window(args.Window))
		if err := w.AddEventFilter(ch, fn, xwin.ForEvents(codes...)); err != nil {
			return nil, WatchEventsOutput{}, err
		}
		defer w.DiscardEventFilter(ch)
	} else {
		if err := s.conn.AddEventFilter(ch, fn, codes...); err != nil {
			return nil, WatchEventsOutput{}, err
		}
		defer s.conn.DiscardEventFilter(ch)
	}

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	out := WatchEventsOutput{Events: make([]EventRecord, 0, max)}
	for len(out.Events) < max {
		select {
		case d := <-ch:
			if d.err != nil {
				return nil, WatchEventsOutput{}, d.err
			}
			code := xkit.EventCode(d.ev)
			out.Events = append(out.Events, EventRecord{
				Code:  int(code),
				Name:  watchcfg.EventName(code),
				Event: d.ev.String(),
			})
			s.logger.Log(evlog.LevelDebug, "event", map[string]interface{}{
				"code": int(code),
				"name": watchcfg.EventName(code),
			})
		case <-ctx.Done():
			out.TimedOut = true
			s.logTool("watch_events", map[string]interface{}{"events": len(out.Events), "timed_out": true})
			return nil, out, nil
		}
	}
	s.logTool("watch_events", map[string]interface{}{"events": len(out.Events)})
	return nil, out, nil
}

func (s *Server) handleResolveKey(ctx context.Context, _ *mcpsdk.CallToolRequest, args ResolveKeyInput) (*mcpsdk.CallToolResult, ResolveKeyOutput, error) {
	if args.Keycode < 8 || args.Keycode > 255 {
		return nil, ResolveKeyOutput{}, fmt.Errorf("keycode must be between 8 and 255, got %d", args.Keycode)
	}
	table, err := s.keymapTable(ctx)
	if err != nil {
		return nil, ResolveKeyOutput{}, err
	}
	sym := table.Resolve(xproto.Keycode(args.Keycode), uint16(args.State))
	out := ResolveKeyOutput{Keysym: uint32(sym)}
	if sym == keymap.NoSymbol {
		return nil, out, nil
	}
	out.Name = keybind.KeysymToStr(sym)
	out.Modifier = keymap.IsModifier(sym)
	if r := keymap.Rune(sym); r >= 0 {
		out.Rune = string(r)
	}
	return nil, out, nil
}

// windowOrRoot maps the tool convention of "0 means the root window" onto the
// registry.
func (s *Server) windowOrRoot(id uint32) (*xwin.Window, error) {
	if id == 0 {
		return s.reg.Root()
	}
	return s.reg.Window(xproto.Window(id)), nil
}
