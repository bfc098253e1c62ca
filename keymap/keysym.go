package keymap

import "github.com/BurntSushi/xgb/xproto"

// Keysym values from <X11/keysymdef.h>, limited to the ones the resolution
// algorithm and common key handling need.
const (
	SymVoid xproto.Keysym = 0xffffff

	SymBackSpace xproto.Keysym = 0xff08
	SymTab       xproto.Keysym = 0xff09
	SymReturn    xproto.Keysym = 0xff0d
	SymEscape    xproto.Keysym = 0xff1b
	SymDelete    xproto.Keysym = 0xffff

	SymLeft  xproto.Keysym = 0xff51
	SymUp    xproto.Keysym = 0xff52
	SymRight xproto.Keysym = 0xff53
	SymDown  xproto.Keysym = 0xff54

	SymModeSwitch xproto.Keysym = 0xff7e
	SymNumLock    xproto.Keysym = 0xff7f

	SymKPSpace     xproto.Keysym = 0xff80
	SymKPEnter     xproto.Keysym = 0xff8d
	SymKPMultiply  xproto.Keysym = 0xffaa
	SymKPAdd       xproto.Keysym = 0xffab
	SymKPSeparator xproto.Keysym = 0xffac
	SymKPSubtract  xproto.Keysym = 0xffad
	SymKPDecimal   xproto.Keysym = 0xffae
	SymKPDivide    xproto.Keysym = 0xffaf
	SymKP0         xproto.Keysym = 0xffb0
	SymKP9         xproto.Keysym = 0xffb9
	SymKPEqual     xproto.Keysym = 0xffbd

	SymShiftL    xproto.Keysym = 0xffe1
	SymShiftR    xproto.Keysym = 0xffe2
	SymControlL  xproto.Keysym = 0xffe3
	SymControlR  xproto.Keysym = 0xffe4
	SymCapsLock  xproto.Keysym = 0xffe5
	SymShiftLock xproto.Keysym = 0xffe6
	SymAltL      xproto.Keysym = 0xffe9
	SymAltR      xproto.Keysym = 0xffea
	SymSuperL    xproto.Keysym = 0xffeb
	SymSuperR    xproto.Keysym = 0xffec
)

// IsKeypad reports whether sym sits in the keypad block, KP_Space through
// KP_Equal.
func IsKeypad(sym xproto.Keysym) bool {
	return sym >= SymKPSpace && sym <= SymKPEqual
}

// IsModifier reports whether sym is one of the modifier keysyms (shift,
// control, caps/shift lock, meta, alt, super, hyper).
func IsModifier(sym xproto.Keysym) bool {
	return (sym >= SymShiftL && sym <= 0xffee) || sym == SymModeSwitch || sym == SymNumLock
}

// Rune converts a keysym to the character it types, or -1 when the keysym
// does not produce one. Latin-1 keysyms map directly, keypad keysyms map to
// their ASCII equivalents, and Unicode keysyms carry their code point.
func Rune(sym xproto.Keysym) rune {
	switch {
	case sym >= 0x20 && sym <= 0x7e, sym >= 0xa0 && sym <= 0xff:
		return rune(sym)
	case sym >= SymKP0 && sym <= SymKP9:
		return rune('0' + sym - SymKP0)
	case sym >= SymKPMultiply && sym <= SymKPDivide:
		return rune('*' + sym - SymKPMultiply)
	case sym == SymKPSpace:
		return ' '
	case sym == SymKPEqual:
		return '='
	case sym == SymTab:
		return '\t'
	case sym == SymReturn, sym == SymKPEnter:
		return '\n'
	case sym >= 0x01000020 && sym <= 0x0110ffff:
		return rune(sym - 0x01000000)
	}
	return -1
}
