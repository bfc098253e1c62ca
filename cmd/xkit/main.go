package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/xwin"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "watch":
		os.Exit(runWatch(os.Args[2:]))
	case "tree":
		os.Exit(runTree(os.Args[2:]))
	case "atoms":
		os.Exit(runAtoms(os.Args[2:]))
	case "keys":
		os.Exit(runKeys(os.Args[2:]))
	case "tui":
		os.Exit(runTUI(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: xkit <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  watch          Print events as the server reports them")
	fmt.Fprintln(w, "  tree           Print the window hierarchy")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  atoms intern   Resolve atom names to ids")
	fmt.Fprintln(w, "  atoms name     Resolve atom ids to names")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  keys           Dump the keyboard mapping and modifier masks")
	fmt.Fprintln(w, "  tui            Full screen live event monitor")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve      Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'xkit <command> --help' for command-specific options.")
}

// connect dials the display, preferring the flag over the config over the
// DISPLAY environment variable.
func connect(cfg *watchcfg.Config, display string) (*xkit.Conn, *xwin.Registry, error) {
	if display == "" {
		display = cfg.Display
	}
	conn, err := xkit.Dial(display)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to display: %w", err)
	}
	return conn, xwin.NewRegistry(conn), nil
}

// parseWindowID accepts hex (0x-prefixed) or decimal window ids.
func parseWindowID(s string) (xproto.Window, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return xproto.Window(id), nil
}
