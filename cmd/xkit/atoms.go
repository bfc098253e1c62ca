package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit/internal/watchcfg"
)

const atomsTimeout = 10 * time.Second

func printAtomsUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xkit atoms intern [--create] <name>...")
	fmt.Fprintln(w, "  xkit atoms name <id>...")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'xkit atoms <command> --help' for command-specific options.")
}

func runAtoms(args []string) int {
	if len(args) == 0 {
		printAtomsUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "intern":
		return runAtomsIntern(args[1:])
	case "name":
		return runAtomsName(args[1:])
	case "help", "-h", "--help":
		printAtomsUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown atoms command: %s\n\n", args[0])
		printAtomsUsage(os.Stderr)
		return 2
	}
}

func runAtomsIntern(args []string) int {
	fs := flag.NewFlagSet("intern", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit atoms intern [--create] <name>...")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Resolve atom names to ids. Without --create, names the server never")
		fmt.Fprintln(os.Stderr, "interned report as missing instead of being created.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	create := fs.Bool("create", false, "Intern names the server does not know yet")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "atoms intern requires at least one <name>")
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

	ctx, cancel := context.WithTimeout(context.Background(), atomsTimeout)
	defer cancel()

	rc := 0
	atoms := conn.Atoms()
	for _, name := range fs.Args() {
		atom, err := atoms.Atom(ctx, name, *create)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			rc = 1
			continue
		}
		if atom == xproto.AtomNone {
			fmt.Printf("%s\tnot interned\n", name)
			continue
		}
		fmt.Printf("%s\t%d\n", name, uint32(atom))
	}
	return rc
}

func runAtomsName(args []string) int {
	fs := flag.NewFlagSet("name", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit atoms name <id>...")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Resolve atom ids to their names.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "atoms name requires at least one <id>")
		fs.Usage()
		return 2
	}

	ids := make([]xproto.Atom, 0, fs.NArg())
	for _, arg := range fs.Args() {
		id, err := strconv.ParseUint(arg, 0, 32)
		if err != nil || id == 0 {
			fmt.Fprintf(os.Stderr, "invalid atom id %q\n", arg)
			return 2
		}
		ids = append(ids, xproto.Atom(id))
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

	ctx, cancel := context.WithTimeout(context.Background(), atomsTimeout)
	defer cancel()

	rc := 0
	atoms := conn.Atoms()
	for _, id := range ids {
		name, err := atoms.Name(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%d: %v\n", uint32(id), err)
			rc = 1
			continue
		}
		fmt.Printf("%d\t%s\n", uint32(id), name)
	}
	return rc
}
