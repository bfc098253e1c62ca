package xwin

import (
	"github.com/1broseidon/xkit"
)

// FilterOption adjusts how a window-scoped event filter is registered.
type FilterOption func(*filterConfig)

type filterConfig struct {
	codes []byte
	any   bool
}

// ForEvents restricts the filter to the given event codes. Without it the
// filter is a wildcard over all codes. The option is also how RemoveEventFilter
// names the codes to subtract from a selective registration.
func ForEvents(codes ...byte) FilterOption {
	return func(cfg *filterConfig) {
		cfg.codes = append(cfg.codes, codes...)
	}
}

// AnyWindow delivers events to the filter whenever the fan-out visits its
// window, whether or not the event names that window. Top-level windows with
// an AnyWindow filter therefore observe the whole event stream.
func AnyWindow() FilterOption {
	return func(cfg *filterConfig) {
		cfg.any = true
	}
}

func applyOptions(opts []FilterOption) filterConfig {
	var cfg filterConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// winFilter is one window-scoped registration. A nil code set matches every
// event code. The any flag widens the window-identity check from "event names
// this window" to "fan-out visited this window".
type winFilter struct {
	tag   interface{}
	fn    xkit.FilterFunc
	codes map[byte]struct{}
	any   bool
}

func (f *winFilter) matches(code byte) bool {
	if f.codes == nil {
		return true
	}
	_, ok := f.codes[code]
	return ok
}

// winFilterList is ordered like the connection-level registry but supports
// incremental selector merge: re-adding a tag with more codes unions them
// into the existing entry, and removal subtracts codes until the entry is
// empty. Wildcard and selective registrations never mix under one tag.
type winFilterList []*winFilter

func (l winFilterList) index(tag interface{}) int {
	for i, f := range l {
		if f.tag == tag {
			return i
		}
	}
	return -1
}

// merge registers or widens the entry under tag. It reports whether a new
// entry was created, so the owner can keep its registration count exact.
func (l *winFilterList) merge(tag interface{}, fn xkit.FilterFunc, cfg filterConfig) (bool, error) {
	i := l.index(tag)
	if i < 0 {
		*l = append(*l, &winFilter{tag: tag, fn: fn, codes: codeSet(cfg.codes), any: cfg.any})
		return true, nil
	}
	f := (*l)[i]
	if f.any != cfg.any {
		return false, xkit.ErrSelectorMismatch
	}
	if f.codes == nil || len(cfg.codes) == 0 {
		if f.codes == nil && len(cfg.codes) == 0 {
			return false, xkit.ErrDuplicateFilter
		}
		return false, xkit.ErrSelectorMismatch
	}
	for _, c := range cfg.codes {
		f.codes[c] = struct{}{}
	}
	return false, nil
}

// subtract narrows or deletes the entry under tag. Removing with no codes
// requires a wildcard entry and deletes it; removing codes requires a
// selective entry and deletes it once its set drains. It reports whether the
// entry disappeared.
func (l *winFilterList) subtract(tag interface{}, codes []byte) (bool, error) {
	i := l.index(tag)
	if i < 0 {
		return false, xkit.ErrFilterNotFound
	}
	f := (*l)[i]
	if len(codes) == 0 {
		if f.codes != nil {
			return false, xkit.ErrSelectorMismatch
		}
		l.delete(i)
		return true, nil
	}
	if f.codes == nil {
		return false, xkit.ErrSelectorMismatch
	}
	for _, c := range codes {
		delete(f.codes, c)
	}
	if len(f.codes) == 0 {
		l.delete(i)
		return true, nil
	}
	return false, nil
}

// discard drops the entry under tag no matter how it was registered.
func (l *winFilterList) discard(tag interface{}) bool {
	i := l.index(tag)
	if i < 0 {
		return false
	}
	l.delete(i)
	return true
}

func (l *winFilterList) delete(i int) {
	*l = append((*l)[:i], (*l)[i+1:]...)
}

func (l winFilterList) snapshot() []*winFilter {
	if len(l) == 0 {
		return nil
	}
	out := make([]*winFilter, len(l))
	copy(out, l)
	return out
}

func codeSet(codes []byte) map[byte]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[byte]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
