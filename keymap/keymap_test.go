package keymap

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func TestFromReplyPropagation(t *testing.T) {
	reply := &xproto.GetKeyboardMappingReply{
		KeysymsPerKeycode: 4,
		Keysyms: []xproto.Keysym{
			'a', 'A', 0, 0, // two symbols fill group 2 from group 1
			'1', '!', 0, 0,
			0, 0, 0, 0, // empty row, dropped
			'x', 0, 0, 0, // one symbol fills everything
			'q', 'Q', 'w', 0, // group 2 upper falls back to group 1 upper
		},
	}
	tbl := FromReply(8, reply)

	if tbl.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (empty row dropped)", tbl.Len())
	}
	tests := []struct {
		code xproto.Keycode
		want [4]xproto.Keysym
	}{
		{8, [4]xproto.Keysym{'a', 'A', 'a', 'A'}},
		{9, [4]xproto.Keysym{'1', '!', '1', '!'}},
		{11, [4]xproto.Keysym{'x', 'x', 'x', 'x'}},
		{12, [4]xproto.Keysym{'q', 'Q', 'w', 'Q'}},
	}
	for _, tt := range tests {
		if got := tbl.Keysyms(tt.code); got != tt.want {
			t.Errorf("Keysyms(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if got := tbl.Keysyms(10); got != ([4]xproto.Keysym{}) {
		t.Errorf("dropped keycode kept symbols: %v", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	reply := &xproto.GetKeyboardMappingReply{
		KeysymsPerKeycode: 4,
		Keysyms:           []xproto.Keysym{'a', 'A', 0, 0},
	}
	const code = 38

	tests := []struct {
		name        string
		state       uint16
		lockIsShift bool
		want        xproto.Keysym
	}{
		{"unmodified", 0, false, 'a'},
		{"shift", xproto.KeyButMaskShift, false, 'A'},
		{"caps lock upcases the base letter", xproto.KeyButMaskLock, false, 'A'},
		{"shift plus caps lock", xproto.KeyButMaskShift | xproto.KeyButMaskLock, false, 'A'},
		{"shift lock picks the upper slot", xproto.KeyButMaskLock, true, 'A'},
		{"control alone changes nothing", xproto.KeyButMaskControl, false, 'a'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := FromReply(code, reply)
			tbl.LockIsShiftLock = tt.lockIsShift
			if got := tbl.Resolve(code, tt.state); got != tt.want {
				t.Fatalf("Resolve(state=%#x) = %#x, want %#x", tt.state, got, tt.want)
			}
		})
	}

	tbl := FromReply(code, reply)
	if got := tbl.Resolve(200, 0); got != NoSymbol {
		t.Fatalf("unknown keycode resolved to %#x, want NoSymbol", got)
	}
}

func TestResolveKeypadUnderNumlock(t *testing.T) {
	const symKPHome xproto.Keysym = 0xff95
	const symKP7 xproto.Keysym = 0xffb7
	reply := &xproto.GetKeyboardMappingReply{
		KeysymsPerKeycode: 2,
		Keysyms:           []xproto.Keysym{symKPHome, symKP7},
	}
	const code = 79
	tbl := FromReply(code, reply)
	tbl.NumLockMask = xproto.KeyButMaskMod2

	if got := tbl.Resolve(code, 0); got != symKPHome {
		t.Fatalf("no numlock = %#x, want KP_Home", got)
	}
	if got := tbl.Resolve(code, xproto.KeyButMaskMod2); got != symKP7 {
		t.Fatalf("numlock = %#x, want KP_7", got)
	}
	if got := tbl.Resolve(code, xproto.KeyButMaskMod2|xproto.KeyButMaskShift); got != symKPHome {
		t.Fatalf("numlock+shift = %#x, want KP_Home", got)
	}

	tbl.LockIsShiftLock = true
	if got := tbl.Resolve(code, xproto.KeyButMaskMod2|xproto.KeyButMaskLock); got != symKPHome {
		t.Fatalf("numlock+shiftlock = %#x, want KP_Home", got)
	}
}

func TestResolveModeSwitch(t *testing.T) {
	reply := &xproto.GetKeyboardMappingReply{
		KeysymsPerKeycode: 4,
		Keysyms:           []xproto.Keysym{'a', 'A', 'b', 'B'},
	}
	const code = 24
	tbl := FromReply(code, reply)
	tbl.ModeSwitchMask = xproto.KeyButMaskMod5

	if got := tbl.Resolve(code, xproto.KeyButMaskMod5); got != 'b' {
		t.Fatalf("mode switch = %q, want b", got)
	}
	if got := tbl.Resolve(code, xproto.KeyButMaskMod5|xproto.KeyButMaskShift); got != 'B' {
		t.Fatalf("mode switch + shift = %q, want B", got)
	}
}

func TestConfigureModifiers(t *testing.T) {
	tbl := &Table{rows: map[xproto.Keycode][4]xproto.Keysym{
		50: {SymShiftL, SymShiftL, SymShiftL, SymShiftL},
		66: {SymCapsLock, SymCapsLock, SymCapsLock, SymCapsLock},
		77: {SymNumLock, SymNumLock, SymNumLock, SymNumLock},
		92: {SymModeSwitch, SymModeSwitch, SymModeSwitch, SymModeSwitch},
	}}

	reply := &xproto.GetModifierMappingReply{
		KeycodesPerModifier: 2,
		Keycodes: []xproto.Keycode{
			50, 0, // shift
			66, 0, // lock
			0, 0, // control
			0, 0, // mod1
			77, 0, // mod2
			0, 0, // mod3
			92, 0, // mod4
			0, 0, // mod5
		},
	}
	tbl.ConfigureModifiers(reply)

	if tbl.NumLockMask != xproto.KeyButMaskMod2 {
		t.Fatalf("NumLockMask = %#x, want Mod2", tbl.NumLockMask)
	}
	if tbl.ModeSwitchMask != xproto.KeyButMaskMod4 {
		t.Fatalf("ModeSwitchMask = %#x, want Mod4", tbl.ModeSwitchMask)
	}
	if tbl.LockIsShiftLock {
		t.Fatalf("caps lock misread as shift lock")
	}
}

func TestConfigureModifiersShiftLock(t *testing.T) {
	tbl := &Table{rows: map[xproto.Keycode][4]xproto.Keysym{
		66: {SymShiftLock, SymShiftLock, SymShiftLock, SymShiftLock},
	}}
	reply := &xproto.GetModifierMappingReply{
		KeycodesPerModifier: 1,
		Keycodes:            []xproto.Keycode{0, 66, 0, 0, 0, 0, 0, 0},
	}
	tbl.ConfigureModifiers(reply)
	if !tbl.LockIsShiftLock {
		t.Fatalf("shift lock on the Lock modifier not detected")
	}

	// Caps lock sharing the modifier wins over shift lock.
	tbl.rows[67] = [4]xproto.Keysym{SymCapsLock, SymCapsLock, SymCapsLock, SymCapsLock}
	tbl.ConfigureModifiers(&xproto.GetModifierMappingReply{
		KeycodesPerModifier: 2,
		Keycodes: []xproto.Keycode{
			0, 0,
			66, 67,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		},
	})
	if tbl.LockIsShiftLock {
		t.Fatalf("caps lock presence should force caps semantics")
	}
}

func TestRune(t *testing.T) {
	tests := []struct {
		sym  xproto.Keysym
		want rune
	}{
		{'a', 'a'},
		{' ', ' '},
		{0xe9, 'é'}, // Latin-1 eacute
		{SymKP0 + 3, '3'},
		{SymKPAdd, '+'},
		{SymTab, '\t'},
		{SymReturn, '\n'},
		{SymEscape, -1},
		{SymShiftL, -1},
		{0x010020ac, '€'}, // Unicode keysym
	}
	for _, tt := range tests {
		if got := Rune(tt.sym); got != tt.want {
			t.Errorf("Rune(%#x) = %q, want %q", tt.sym, got, tt.want)
		}
	}
}
