// Package tui is a full screen live event monitor. Selected events stream
// into a scrollback filterable by event name, with keysym resolution for
// key events and a RandR monitor overlay.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/xwin"
)

// eventBacklog bounds the filter-to-model channel. The dispatcher never
// blocks on a slow terminal; overflow is counted and shown in the status
// bar instead.
const eventBacklog = 512

// Options configure Run.
type Options struct {
	// Selectors are event or group names resolved through the config.
	// Empty watches everything.
	Selectors []string

	// Window scopes the watch to one window's filter set instead of the
	// whole connection.
	Window xproto.Window
}

// Run installs the event filter and runs the program until the user quits
// or the connection dies.
func Run(conn *xkit.Conn, reg *xwin.Registry, cfg *watchcfg.Config, opts Options) error {
	codes, err := cfg.ResolveEvents(opts.Selectors)
	if err != nil {
		return err
	}
	wantMapping := codes == nil || containsCode(codes, xproto.MappingNotify)

	events := make(chan xgb.Event, eventBacklog)
	errs := make(chan error, 1)
	var dropped atomic.Int64
	fn := func(ev xgb.Event, err error) {
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		select {
		case events <- ev:
		default:
			dropped.Add(1)
		}
	}

	tag := &struct{}{}
	scope := ""
	if opts.Window != 0 {
		w := reg.Window(opts.Window)
		if err := w.AddEventFilter(tag, fn, xwin.ForEvents(codes...)); err != nil {
			return err
		}
		defer w.DiscardEventFilter(tag)

		// A window-scoped filter never sees MappingNotify; watch it on the
		// connection so the keysym table stays fresh.
		mtag := &struct{}{}
		if err := conn.AddEventFilter(mtag, fn, xproto.MappingNotify); err != nil {
			return err
		}
		defer conn.DiscardEventFilter(mtag)
		scope = fmt.Sprintf("0x%08x", uint32(opts.Window))
	} else {
		filterCodes := codes
		if codes != nil && !containsCode(codes, xproto.MappingNotify) {
			// MappingNotify rides along even when not selected so the keysym
			// table can be invalidated; wantMapping decides whether it is
			// also shown.
			filterCodes = append(append([]byte(nil), codes...), xproto.MappingNotify)
		}
		if err := conn.AddEventFilter(tag, fn, filterCodes...); err != nil {
			return err
		}
		defer conn.DiscardEventFilter(tag)
	}

	watching := "all events"
	if len(opts.Selectors) > 0 {
		watching = strings.Join(opts.Selectors, ",")
	}

	m := newModel(conn, reg, events, errs, &dropped, watching, scope, wantMapping)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(model); ok && fm.fatal != nil {
		return fm.fatal
	}
	return nil
}

func containsCode(codes []byte, code byte) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
