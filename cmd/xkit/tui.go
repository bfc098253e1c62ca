package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/1broseidon/xkit/internal/tui"
	"github.com/1broseidon/xkit/internal/watchcfg"
)

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit tui [flags] [event|group ...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Full screen live event monitor. Selectors are event names (KeyPress,")
		fmt.Fprintln(os.Stderr, "ConfigureNotify, ...) or group names; with no selector an interactive")
		fmt.Fprintln(os.Stderr, "picker chooses event groups first.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintf(os.Stderr, "Builtin groups: %s\n", strings.Join(watchcfg.BuiltinGroupNames(), ", "))
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	windowFlag := fs.String("window", "", "Only events naming this window id (hex or decimal)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "tui requires an interactive terminal")
		return 1
	}

	cfg, err := watchcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	selectors := fs.Args()
	if _, err := cfg.ResolveEvents(selectors); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 2
	}
	if len(selectors) == 0 {
		selectors, err = tui.PickSelectors(cfg)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return 0
			}
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	var windowID xproto.Window
	if *windowFlag != "" {
		windowID, err = parseWindowID(*windowFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	conn, reg, err := connect(cfg, *display)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer conn.Close()
	defer reg.Close()

	if err := tui.Run(conn, reg, cfg, tui.Options{Selectors: selectors, Window: windowID}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
