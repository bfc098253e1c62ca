package xkit

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// opaqueEvent stands in for an extension event the core type switch does not
// know.
type opaqueEvent struct{ first byte }

func (e opaqueEvent) Bytes() []byte  { return []byte{e.first, 0, 0, 0} }
func (e opaqueEvent) String() string { return "opaque" }

func TestEventCode(t *testing.T) {
	if got := EventCode(xproto.KeyPressEvent{}); got != xproto.KeyPress {
		t.Fatalf("KeyPressEvent code = %d, want %d", got, xproto.KeyPress)
	}
	if got := EventCode(xproto.ClientMessageEvent{}); got != xproto.ClientMessage {
		t.Fatalf("ClientMessageEvent code = %d, want %d", got, xproto.ClientMessage)
	}
	// Extension events fall back to the wire byte, send-event bit stripped.
	if got := EventCode(opaqueEvent{first: 0x85}); got != 5 {
		t.Fatalf("opaque event code = %d, want 5", got)
	}
}

func TestFilterListOrderAndTags(t *testing.T) {
	var l filterList
	nop := func(ev xgb.Event, err error) {}

	if err := l.add("a", nop, nil); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := l.add("b", nop, []byte{xproto.Expose}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := l.add("a", nop, nil); !errors.Is(err, ErrDuplicateFilter) {
		t.Fatalf("duplicate add = %v, want ErrDuplicateFilter", err)
	}

	snap := l.snapshot()
	if len(snap) != 2 || snap[0].tag != "a" || snap[1].tag != "b" {
		t.Fatalf("snapshot order = %v, want [a b]", snap)
	}
	if !snap[0].matches(xproto.KeyPress) {
		t.Fatalf("wildcard entry rejected KeyPress")
	}
	if snap[1].matches(xproto.KeyPress) || !snap[1].matches(xproto.Expose) {
		t.Fatalf("selective entry ignores its code set")
	}

	if err := l.remove("missing"); !errors.Is(err, ErrFilterNotFound) {
		t.Fatalf("remove missing = %v, want ErrFilterNotFound", err)
	}
	if err := l.remove("a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if l.len() != 1 {
		t.Fatalf("len after removal = %d, want 1", l.len())
	}

	// Snapshots are immune to later mutation.
	before := l.snapshot()
	if err := l.add("c", nop, nil); err != nil {
		t.Fatalf("add c: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("earlier snapshot grew to %d entries", len(before))
	}
}
