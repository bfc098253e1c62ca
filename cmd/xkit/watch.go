package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"
	"golang.org/x/term"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/evlog"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/keymap"
	"github.com/1broseidon/xkit/xwin"
)

// keymapFetchTimeout bounds the lazy keyboard-mapping fetch during a watch.
const keymapFetchTimeout = 5 * time.Second

type eventRecord struct {
	Time   string `json:"time"`
	Code   int    `json:"code"`
	Name   string `json:"name"`
	Keysym uint32 `json:"keysym,omitempty"`
	Sym    string `json:"sym,omitempty"`
	Event  string `json:"event"`
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit watch [flags] [event|group ...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Print events as the server reports them. Selectors are event names")
		fmt.Fprintln(os.Stderr, "(KeyPress, ConfigureNotify, ...) or group names; no selector watches")
		fmt.Fprintln(os.Stderr, "everything.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintf(os.Stderr, "Builtin groups: %s\n", strings.Join(watchcfg.BuiltinGroupNames(), ", "))
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	jsonOut := fs.Bool("json", false, "Emit one JSON object per event")
	maxEvents := fs.Int("max", 0, "Stop after N events (0 = unlimited)")
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	windowFlag := fs.String("window", "", "Only events naming this window id (hex or decimal)")
	logEvents := fs.Bool("log", false, "Record events to the log file even when config disables it")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := watchcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	codes, err := cfg.ResolveEvents(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 2
	}

	var windowID xproto.Window
	if *windowFlag != "" {
		windowID, err = parseWindowID(*windowFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	logger := openEventLog(cfg, *logEvents)
	defer logger.Close()

	conn, reg, err := connect(cfg, *display)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer conn.Close()
	defer reg.Close()

	return watchLoop(conn, reg, cfg, watchOptions{
		codes:    codes,
		window:   windowID,
		json:     *jsonOut || cfg.Output == watchcfg.OutputJSON,
		max:      *maxEvents,
		duration: *duration,
		logger:   logger,
	})
}

type watchOptions struct {
	codes    []byte
	window   xproto.Window
	json     bool
	max      int
	duration time.Duration
	logger   *evlog.Logger
}

func watchLoop(conn *xkit.Conn, reg *xwin.Registry, cfg *watchcfg.Config, opts watchOptions) int {
	// MappingNotify rides along even when not selected so the keysym table
	// can be invalidated; wantMapping decides whether it is also printed.
	wantMapping := opts.codes == nil
	filterCodes := opts.codes
	if filterCodes != nil {
		for _, c := range filterCodes {
			if c == xproto.MappingNotify {
				wantMapping = true
			}
		}
		if !wantMapping {
			filterCodes = append(append([]byte(nil), filterCodes...), xproto.MappingNotify)
		}
	}

	type delivery struct{ ev xgb.Event }
	ch := make(chan delivery, 256)
	errCh := make(chan error, 1)
	var droppedCount atomic.Int64
	fn := func(ev xgb.Event, err error) {
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		select {
		case ch <- delivery{ev}:
		default:
			droppedCount.Add(1)
		}
	}

	tag := &struct{}{}
	if opts.window != xproto.WindowNone {
		w := reg.Window(opts.window)
		if err := w.AddEventFilter(tag, fn, xwin.ForEvents(filterCodes...)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer w.DiscardEventFilter(tag)
		// A window-scoped filter never sees MappingNotify; watch it on the
		// connection so the keysym table stays fresh.
		mtag := &struct{}{}
		if err := conn.AddEventFilter(mtag, fn, xproto.MappingNotify); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer conn.DiscardEventFilter(mtag)
	} else {
		if err := conn.AddEventFilter(tag, fn, filterCodes...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer conn.DiscardEventFilter(tag)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeUp <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		timeUp = timer.C
	}

	if !opts.json && term.IsTerminal(int(os.Stdout.Fd())) {
		what := "all events"
		if opts.codes != nil {
			names := make([]string, 0, len(opts.codes))
			for _, c := range opts.codes {
				names = append(names, watchcfg.EventName(c))
			}
			what = strings.Join(names, ", ")
		}
		if opts.window != xproto.WindowNone {
			what = fmt.Sprintf("%s naming 0x%08x", what, uint32(opts.window))
		}
		fmt.Printf("watching %s (ctrl-c to stop)\n", what)
	}

	enc := json.NewEncoder(os.Stdout)
	var table *keymap.Table
	warnedKeymap := false
	count := 0
	for {
		select {
		case d := <-ch:
			code := xkit.EventCode(d.ev)
			if code == xproto.MappingNotify {
				if mn, ok := d.ev.(xproto.MappingNotifyEvent); ok && mn.Request != xproto.MappingPointer {
					table = nil
				}
				if !wantMapping {
					continue
				}
			}

			rec := eventRecord{
				Time:  time.Now().Format(time.RFC3339Nano),
				Code:  int(code),
				Name:  watchcfg.EventName(code),
				Event: d.ev.String(),
			}
			if keycode, state, ok := keyEvent(d.ev); ok {
				if table == nil && !warnedKeymap {
					fctx, cancel := context.WithTimeout(context.Background(), keymapFetchTimeout)
					t, err := keymap.Fetch(fctx, conn)
					cancel()
					if err != nil {
						fmt.Fprintf(os.Stderr, "warning: keysym resolution unavailable: %v\n", err)
						warnedKeymap = true
					} else {
						table = t
					}
				}
				if table != nil {
					if sym := table.Resolve(keycode, state); sym != keymap.NoSymbol {
						rec.Keysym = uint32(sym)
						rec.Sym = keybind.KeysymToStr(sym)
					}
				}
			}

			if opts.json {
				if err := enc.Encode(rec); err != nil {
					fmt.Fprintln(os.Stderr, err)
					return 1
				}
			} else {
				line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05.000"), rec.Event)
				if rec.Keysym != 0 {
					line += fmt.Sprintf(" keysym=0x%04x sym=%s", rec.Keysym, rec.Sym)
				}
				fmt.Println(line)
			}

			fields := map[string]interface{}{"code": rec.Code, "name": rec.Name}
			if rec.Keysym != 0 {
				fields["keysym"] = rec.Keysym
				fields["sym"] = rec.Sym
			}
			opts.logger.Log(evlog.LevelInfo, "event", fields)

			count++
			if opts.max > 0 && count >= opts.max {
				reportDropped(droppedCount.Load())
				return 0
			}

		case err := <-errCh:
			fmt.Fprintln(os.Stderr, err)
			return 1

		case <-sigCh:
			reportDropped(droppedCount.Load())
			return 0

		case <-timeUp:
			reportDropped(droppedCount.Load())
			return 0
		}
	}
}

func keyEvent(ev xgb.Event) (xproto.Keycode, uint16, bool) {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		return e.Detail, e.State, true
	case xproto.KeyReleaseEvent:
		return e.Detail, e.State, true
	}
	return 0, 0, false
}

func reportDropped(n int64) {
	if n > 0 {
		fmt.Fprintf(os.Stderr, "dropped %d events (printing too slow)\n", n)
	}
}

// openEventLog builds the log sink from config; --log forces it on with the
// default path. A sink that cannot be opened degrades to a warning.
func openEventLog(cfg *watchcfg.Config, force bool) *evlog.Logger {
	logCfg := cfg.Logging
	if force {
		logCfg.Enabled = true
		if logCfg.File == "" {
			path, err := watchcfg.DefaultLogPath()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: event log disabled: %v\n", err)
				return nil
			}
			logCfg.File = path
		}
	}
	if !logCfg.Enabled {
		return nil
	}
	logger, err := evlog.New(evlog.Config{
		Enabled:   true,
		Level:     evlog.ParseLevel(logCfg.Level),
		FilePath:  logCfg.File,
		MaxSizeMB: logCfg.MaxSizeMB,
		MaxFiles:  logCfg.MaxFiles,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: event log disabled: %v\n", err)
		return nil
	}
	return logger
}
