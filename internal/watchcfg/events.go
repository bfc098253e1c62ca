package watchcfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
)

// groupAll is the reserved wildcard group: it selects every event and cannot
// be redefined.
const groupAll = "all"

// eventNames maps the core protocol event codes to their protocol names.
var eventNames = map[byte]string{
	xproto.KeyPress:         "KeyPress",
	xproto.KeyRelease:       "KeyRelease",
	xproto.ButtonPress:      "ButtonPress",
	xproto.ButtonRelease:    "ButtonRelease",
	xproto.MotionNotify:     "MotionNotify",
	xproto.EnterNotify:      "EnterNotify",
	xproto.LeaveNotify:      "LeaveNotify",
	xproto.FocusIn:          "FocusIn",
	xproto.FocusOut:         "FocusOut",
	xproto.KeymapNotify:     "KeymapNotify",
	xproto.Expose:           "Expose",
	xproto.GraphicsExposure: "GraphicsExposure",
	xproto.NoExposure:       "NoExposure",
	xproto.VisibilityNotify: "VisibilityNotify",
	xproto.CreateNotify:     "CreateNotify",
	xproto.DestroyNotify:    "DestroyNotify",
	xproto.UnmapNotify:      "UnmapNotify",
	xproto.MapNotify:        "MapNotify",
	xproto.MapRequest:       "MapRequest",
	xproto.ReparentNotify:   "ReparentNotify",
	xproto.ConfigureNotify:  "ConfigureNotify",
	xproto.ConfigureRequest: "ConfigureRequest",
	xproto.GravityNotify:    "GravityNotify",
	xproto.ResizeRequest:    "ResizeRequest",
	xproto.CirculateNotify:  "CirculateNotify",
	xproto.CirculateRequest: "CirculateRequest",
	xproto.PropertyNotify:   "PropertyNotify",
	xproto.SelectionClear:   "SelectionClear",
	xproto.SelectionRequest: "SelectionRequest",
	xproto.SelectionNotify:  "SelectionNotify",
	xproto.ColormapNotify:   "ColormapNotify",
	xproto.ClientMessage:    "ClientMessage",
	xproto.MappingNotify:    "MappingNotify",
	xproto.GeGeneric:        "GeGeneric",
}

var eventCodes = make(map[string]byte, len(eventNames))

func init() {
	for code, name := range eventNames {
		eventCodes[strings.ToLower(name)] = code
	}
}

// builtinGroups are the predefined event groups. User groups with the same
// name replace them.
var builtinGroups = map[string][]string{
	"input": {
		"KeyPress", "KeyRelease",
		"ButtonPress", "ButtonRelease",
		"MotionNotify",
	},
	"structure": {
		"CreateNotify", "DestroyNotify",
		"UnmapNotify", "MapNotify",
		"ReparentNotify", "ConfigureNotify",
		"GravityNotify", "CirculateNotify",
	},
	"property": {"PropertyNotify"},
	"focus": {
		"FocusIn", "FocusOut",
		"EnterNotify", "LeaveNotify",
	},
}

// EventName returns the protocol name of a core event code.
func EventName(code byte) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", code)
}

// EventCode resolves a protocol event name, case-insensitively.
func EventCode(name string) (byte, bool) {
	code, ok := eventCodes[strings.ToLower(name)]
	return code, ok
}

// EventNameList returns every known event name in code order.
func EventNameList() []string {
	codes := make([]int, 0, len(eventNames))
	for code := range eventNames {
		codes = append(codes, int(code))
	}
	sort.Ints(codes)
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		out = append(out, eventNames[byte(code)])
	}
	return out
}

// BuiltinGroupNames returns the predefined group names, the wildcard group
// included, sorted.
func BuiltinGroupNames() []string {
	out := make([]string, 0, len(builtinGroups)+1)
	for name := range builtinGroups {
		out = append(out, name)
	}
	out = append(out, groupAll)
	sort.Strings(out)
	return out
}

// ResolveEvents maps a mixed list of event and group names to event codes.
// Group names match exactly against the resolved groups, everything else is
// tried as an event name. An empty list, or any wildcard group, selects every
// event and is reported as a nil slice; that is the shape event filters take.
func (c *Config) ResolveEvents(names []string) ([]byte, error) {
	if len(names) == 0 {
		return nil, nil
	}
	seen := make(map[byte]struct{})
	var codes []byte
	for _, name := range names {
		if group, ok := c.EventGroups[name]; ok {
			if group == nil {
				return nil, nil
			}
			for _, code := range group {
				if _, dup := seen[code]; !dup {
					seen[code] = struct{}{}
					codes = append(codes, code)
				}
			}
			continue
		}
		code, ok := EventCode(name)
		if !ok {
			return nil, fmt.Errorf("unknown event or group %q", name)
		}
		if _, dup := seen[code]; !dup {
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

// resolveGroups expands the builtin groups plus the user's into concrete code
// sets. Group entries may name events (case-insensitive) or other groups
// (exact); referencing the wildcard group makes the whole group a wildcard.
func resolveGroups(user map[string][]string) (map[string][]byte, error) {
	raw := make(map[string][]string, len(builtinGroups)+len(user))
	for name, entries := range builtinGroups {
		raw[name] = entries
	}
	for name, entries := range user {
		if strings.TrimSpace(name) == "" {
			return nil, &ValidationError{Path: "event_groups", Err: fmt.Errorf("group name must not be empty")}
		}
		if name == groupAll {
			return nil, &ValidationError{Path: "event_groups." + groupAll, Err: fmt.Errorf("%q is reserved", groupAll)}
		}
		raw[name] = entries
	}

	out := make(map[string][]byte, len(raw)+1)
	out[groupAll] = nil
	for name := range raw {
		codes, wildcard, err := resolveGroup(raw, name, nil)
		if err != nil {
			return nil, err
		}
		if wildcard {
			out[name] = nil
			continue
		}
		out[name] = codes
	}
	return out, nil
}

func resolveGroup(raw map[string][]string, name string, stack []string) ([]byte, bool, error) {
	for _, existing := range stack {
		if existing == name {
			return nil, false, &ValidationError{
				Path: "event_groups." + name,
				Err:  fmt.Errorf("group cycle detected: %s -> %s", strings.Join(stack, " -> "), name),
			}
		}
	}
	entries := raw[name]
	if len(entries) == 0 {
		return nil, false, &ValidationError{Path: "event_groups." + name, Err: fmt.Errorf("group has no events")}
	}

	seen := make(map[byte]struct{})
	var codes []byte
	for _, entry := range entries {
		if entry == groupAll {
			return nil, true, nil
		}
		if _, ok := raw[entry]; ok {
			sub, wildcard, err := resolveGroup(raw, entry, append(stack, name))
			if err != nil {
				return nil, false, err
			}
			if wildcard {
				return nil, true, nil
			}
			for _, code := range sub {
				if _, dup := seen[code]; !dup {
					seen[code] = struct{}{}
					codes = append(codes, code)
				}
			}
			continue
		}
		code, ok := EventCode(entry)
		if !ok {
			return nil, false, &ValidationError{Path: "event_groups." + name, Err: fmt.Errorf("unknown event or group %q", entry)}
		}
		if _, dup := seen[code]; !dup {
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, false, nil
}
