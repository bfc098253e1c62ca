package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/xwin"
)

const treeTimeout = 30 * time.Second

// treeMaxNodes stops runaway walks; deep toolkits can hold thousands of
// windows.
const treeMaxNodes = 4096

type treeNode struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Children []treeNode `json:"children,omitempty"`
}

func runTree(args []string) int {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xkit tree [flags] [window]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Print the window hierarchy below a window (the root by default).")
		fmt.Fprintln(os.Stderr, "Window ids are hex (0x...) or decimal.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	display := fs.String("display", "", "X display to connect to (overrides config)")
	depth := fs.Int("depth", 0, "Levels to descend (0 = the whole subtree)")
	names := fs.Bool("names", true, "Fetch window names (one extra round-trip per window)")
	jsonOut := fs.Bool("json", false, "Output the tree as JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "tree takes at most one window id")
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

	ctx, cancel := context.WithTimeout(context.Background(), treeTimeout)
	defer cancel()

	start, err := reg.Root()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if fs.NArg() == 1 {
		id, err := parseWindowID(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		start = reg.Window(id)
	}

	budget := treeMaxNodes
	root, err := buildTree(ctx, start, *depth, *names, &budget)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(root); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	printTree(root, 0)
	if budget <= 0 {
		fmt.Fprintf(os.Stderr, "stopped after %d windows\n", treeMaxNodes)
	}
	return 0
}

func buildTree(ctx context.Context, w *xwin.Window, maxDepth int, names bool, budget *int) (treeNode, error) {
	*budget--
	node := treeNode{ID: fmt.Sprintf("0x%08x", uint32(w.ID()))}
	if names {
		if name, err := w.Name(ctx); err == nil && name != "" {
			node.Name = name
		}
	}
	if maxDepth == 1 || *budget <= 0 {
		return node, nil
	}
	nextDepth := 0
	if maxDepth > 0 {
		nextDepth = maxDepth - 1
	}
	children, err := w.AdoptChildren(ctx)
	if err != nil {
		return treeNode{}, err
	}
	for _, child := range children {
		if *budget <= 0 {
			break
		}
		sub, err := buildTree(ctx, child, nextDepth, names, budget)
		if err != nil {
			return treeNode{}, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

func printTree(node treeNode, indent int) {
	line := strings.Repeat("  ", indent) + node.ID
	if node.Name != "" {
		line += fmt.Sprintf(" %q", node.Name)
	}
	fmt.Println(line)
	for _, child := range node.Children {
		printTree(child, indent+1)
	}
}
