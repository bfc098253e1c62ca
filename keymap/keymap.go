// Package keymap resolves X11 keycodes to keysyms per the core protocol's
// keyboard mapping rules: four keysym slots per keycode split into two
// groups, with shift, lock, numlock, and mode-switch modifiers selecting
// among them.
package keymap

import (
	"context"
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
)

// NoSymbol is the empty keysym slot.
const NoSymbol xproto.Keysym = 0

// Table is an immutable keycode→keysym mapping plus the modifier
// interpretation knobs that Resolve consults. The knobs are plain fields:
// adjust them directly or derive them from the server's modifier mapping
// with ConfigureModifiers.
type Table struct {
	rows map[xproto.Keycode][4]xproto.Keysym

	// ModeSwitchMask selects keysym group 2 when set in an event's state.
	ModeSwitchMask uint16
	// NumLockMask enables keypad handling when set in an event's state.
	NumLockMask uint16
	// LockIsShiftLock reads the Lock modifier as shift-lock instead of
	// caps-lock.
	LockIsShiftLock bool
}

// FromReply builds a table from a keyboard-mapping reply covering keycodes
// starting at first. Each keycode keeps at most four keysym slots; empty
// slots inherit the matching slot of the previous group (and the second slot
// falls back to the first), so a two-symbol key behaves identically in both
// groups. Keycodes with no first symbol are dropped.
func FromReply(first xproto.Keycode, reply *xproto.GetKeyboardMappingReply) *Table {
	t := &Table{rows: make(map[xproto.Keycode][4]xproto.Keysym)}
	per := int(reply.KeysymsPerKeycode)
	if per == 0 {
		return t
	}
	for i := 0; (i+1)*per <= len(reply.Keysyms); i++ {
		row := reply.Keysyms[i*per : (i+1)*per]
		var slots [4]xproto.Keysym
		for j := 0; j < 4 && j < per; j++ {
			slots[j] = row[j]
		}
		if slots[0] == NoSymbol {
			continue
		}
		if slots[1] == NoSymbol {
			slots[1] = slots[0]
		}
		if slots[2] == NoSymbol {
			slots[2] = slots[0]
		}
		if slots[3] == NoSymbol {
			slots[3] = slots[1]
		}
		t.rows[first+xproto.Keycode(i)] = slots
	}
	return t
}

// Keysyms returns the four normalized keysym slots for code. Unknown
// keycodes return all NoSymbol.
func (t *Table) Keysyms(code xproto.Keycode) [4]xproto.Keysym {
	return t.rows[code]
}

// Len reports how many keycodes carry at least one symbol.
func (t *Table) Len() int { return len(t.rows) }

// ConfigureModifiers derives the interpretation knobs from the server's
// modifier mapping: the modifier bit whose keycodes carry Num_Lock drives
// keypad handling and the bit carrying Mode_switch selects group 2. Lock is
// read as shift-lock when Shift_Lock sits on it without a Caps_Lock.
func (t *Table) ConfigureModifiers(reply *xproto.GetModifierMappingReply) {
	t.NumLockMask = 0
	t.ModeSwitchMask = 0
	t.LockIsShiftLock = false

	per := int(reply.KeycodesPerModifier)
	if per == 0 {
		return
	}
	lockHasCaps := false
	lockHasShiftLock := false
	for mod := 0; mod < 8 && (mod+1)*per <= len(reply.Keycodes); mod++ {
		mask := uint16(1) << uint(mod)
		for _, code := range reply.Keycodes[mod*per : (mod+1)*per] {
			if code == 0 {
				continue
			}
			for _, sym := range t.rows[code] {
				switch sym {
				case SymNumLock:
					t.NumLockMask |= mask
				case SymModeSwitch:
					t.ModeSwitchMask |= mask
				case SymCapsLock:
					if mask == xproto.KeyButMaskLock {
						lockHasCaps = true
					}
				case SymShiftLock:
					if mask == xproto.KeyButMaskLock {
						lockHasShiftLock = true
					}
				}
			}
		}
	}
	t.LockIsShiftLock = lockHasShiftLock && !lockHasCaps
}

// Resolve maps a key event's keycode and modifier state to a keysym. The
// precedence is the core protocol's: keypad handling under numlock first,
// then the unmodified case, then caps-lock with its ASCII upcasing, then
// shift or shift-lock. Unknown keycodes resolve to NoSymbol.
func (t *Table) Resolve(code xproto.Keycode, state uint16) xproto.Keysym {
	slots, ok := t.rows[code]
	if !ok {
		return NoSymbol
	}
	lower, upper := slots[0], slots[1]
	if t.ModeSwitchMask != 0 && state&t.ModeSwitchMask != 0 {
		lower, upper = slots[2], slots[3]
	}

	shift := state&xproto.KeyButMaskShift != 0
	lock := state&xproto.KeyButMaskLock != 0
	numlock := t.NumLockMask != 0 && state&t.NumLockMask != 0

	switch {
	case numlock && IsKeypad(upper):
		if shift || (lock && t.LockIsShiftLock) {
			return lower
		}
		return upper
	case !shift && !lock:
		return lower
	case lock && !t.LockIsShiftLock:
		sym := lower
		if shift {
			sym = upper
		}
		return asciiUpper(sym)
	default:
		return upper
	}
}

// ResolveKeyPress resolves ev's keycode under ev's modifier state.
func (t *Table) ResolveKeyPress(ev xproto.KeyPressEvent) xproto.Keysym {
	return t.Resolve(ev.Detail, ev.State)
}

// ResolveKeyRelease resolves ev's keycode under ev's modifier state.
func (t *Table) ResolveKeyRelease(ev xproto.KeyReleaseEvent) xproto.Keysym {
	return t.Resolve(ev.Detail, ev.State)
}

func asciiUpper(sym xproto.Keysym) xproto.Keysym {
	if sym >= 'a' && sym <= 'z' {
		return sym - ('a' - 'A')
	}
	return sym
}

// Fetch retrieves the full keyboard mapping and modifier interpretation for
// c's keycode range in two replies.
func Fetch(ctx context.Context, c *xkit.Conn) (*Table, error) {
	xc := c.Wire()
	if xc == nil {
		return nil, errors.New("keymap: connection has no wire transport")
	}
	setup := xproto.Setup(xc)
	first := setup.MinKeycode
	count := byte(setup.MaxKeycode-setup.MinKeycode) + 1

	kmck := xproto.GetKeyboardMapping(xc, first, count)
	kmv, err := c.Reply(ctx, &xkit.Request{
		Sequence: uint64(kmck.Sequence),
		Fetch:    func() (interface{}, error) { return kmck.Reply() },
	})
	if err != nil {
		return nil, fmt.Errorf("keymap: get keyboard mapping: %w", err)
	}
	t := FromReply(first, kmv.(*xproto.GetKeyboardMappingReply))

	mmck := xproto.GetModifierMapping(xc)
	mmv, err := c.Reply(ctx, &xkit.Request{
		Sequence: uint64(mmck.Sequence),
		Fetch:    func() (interface{}, error) { return mmck.Reply() },
	})
	if err != nil {
		return nil, fmt.Errorf("keymap: get modifier mapping: %w", err)
	}
	t.ConfigureModifiers(mmv.(*xproto.GetModifierMappingReply))
	return t, nil
}
