package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/keymap"
)

const keysTimeout = 10 * time.Second

type keymapDump struct {
	NumLockMask     uint16       `json:"num_lock_mask"`
	ModeSwitchMask  uint16       `json:"mode_switch_mask"`
	LockIsShiftLock bool         `json:"lock_is_shift_lock"`
	Keycodes        []keycodeRow `json:"keycodes"`
}

type keycodeRow struct {
	Keycode int      `json:"keycode"`
	Keysyms []string `json:"keysyms"`
}

func runKeys(args []string) int {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit keys [flags]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Dump the keyboard mapping: each keycode's four keysym slots")
		fmt.Fprintln(os.Stderr, "(plain, shifted, group 2 plain, group 2 shifted) plus the modifier")
		fmt.Fprintln(os.Stderr, "masks that drive resolution.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	jsonOut := fs.Bool("json", false, "Output the mapping as JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "keys takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := watchcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	conn, reg, err := connect(cfg, *display)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer conn.Close()
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), keysTimeout)
	defer cancel()

	table, err := keymap.Fetch(ctx, conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	dump := keymapDump{
		NumLockMask:     table.NumLockMask,
		ModeSwitchMask:  table.ModeSwitchMask,
		LockIsShiftLock: table.LockIsShiftLock,
	}
	for code := 8; code <= 255; code++ {
		slots := table.Keysyms(xproto.Keycode(code))
		if slots[0] == keymap.NoSymbol {
			continue
		}
		row := keycodeRow{Keycode: code, Keysyms: make([]string, 0, 4)}
		for _, sym := range slots {
			row.Keysyms = append(row.Keysyms, keysymLabel(sym))
		}
		dump.Keycodes = append(dump.Keycodes, row)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dump); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	fmt.Printf("num_lock_mask:      0x%04x\n", dump.NumLockMask)
	fmt.Printf("mode_switch_mask:   0x%04x\n", dump.ModeSwitchMask)
	fmt.Printf("lock_is_shift_lock: %v\n", dump.LockIsShiftLock)
	fmt.Println()
	for _, row := range dump.Keycodes {
		fmt.Printf("%4d  %-18s %-18s %-18s %-18s\n",
			row.Keycode, row.Keysyms[0], row.Keysyms[1], row.Keysyms[2], row.Keysyms[3])
	}
	return 0
}

func keysymLabel(sym xproto.Keysym) string {
	if sym == keymap.NoSymbol {
		return "-"
	}
	if name := keybind.KeysymToStr(sym); name != "" {
		return name
	}
	return fmt.Sprintf("0x%04x", uint32(sym))
}
