package xmcp

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct{}

// WindowInfo describes one client window.
type WindowInfo struct {
	Window   uint32 `json:"window"`
	Name     string `json:"name,omitempty"`
	Instance string `json:"instance,omitempty"`
	Class    string `json:"class,omitempty"`
	Desktop  int    `json:"desktop"`
	Active   bool   `json:"active,omitempty"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []WindowInfo `json:"windows"`
}

// WindowTreeInput is the input for the window_tree tool.
type WindowTreeInput struct {
	Window uint32 `json:"window,omitempty" jsonschema:"Window id to start from (default: the root window)"`
	Depth  int    `json:"depth,omitempty" jsonschema:"Levels to descend (default: 0, the whole subtree)"`
}

// TreeNode describes one window in a window_tree result.
type TreeNode struct {
	Window uint32 `json:"window"`
	Parent uint32 `json:"parent,omitempty"`
	Depth  int    `json:"depth"`
	Name   string `json:"name,omitempty"`
}

// WindowTreeOutput is the output for the window_tree tool.
type WindowTreeOutput struct {
	Nodes []TreeNode `json:"nodes"`
}

// ListMonitorsInput is the input for the list_monitors tool.
type ListMonitorsInput struct{}

// MonitorInfo describes one active monitor.
type MonitorInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ListMonitorsOutput is the output for the list_monitors tool.
type ListMonitorsOutput struct {
	Monitors []MonitorInfo `json:"monitors"`
}

// InternAtomInput is the input for the intern_atom tool.
type InternAtomInput struct {
	Name   string `json:"name" jsonschema:"required,Atom name to resolve"`
	Create bool   `json:"create,omitempty" jsonschema:"When true, intern the name on the server if it does not exist yet"`
}

// InternAtomOutput is the output for the intern_atom tool.
type InternAtomOutput struct {
	Atom  uint32 `json:"atom"`
	Found bool   `json:"found"`
}

// AtomNameInput is the input for the atom_name tool.
type AtomNameInput struct {
	Atom uint32 `json:"atom" jsonschema:"required,Atom id to name"`
}

// AtomNameOutput is the output for the atom_name tool.
type AtomNameOutput struct {
	Name string `json:"name"`
}

// GetPropertyInput is the input for the get_property tool.
type GetPropertyInput struct {
	Window uint32 `json:"window,omitempty" jsonschema:"Window id to read from (default: the root window)"`
	Name   string `json:"name" jsonschema:"required,Property name (e.g. _NET_WM_NAME, WM_CLASS)"`
}

// GetPropertyOutput is the output for the get_property tool.
type GetPropertyOutput struct {
	Found     bool     `json:"found"`
	Type      uint32   `json:"type,omitempty"`
	TypeName  string   `json:"type_name,omitempty"`
	Format    int      `json:"format,omitempty"`
	Bytes     int      `json:"bytes,omitempty"`
	Text      string   `json:"text,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Cardinals []uint32 `json:"cardinals,omitempty"`
	Windows   []uint32 `json:"windows,omitempty"`
	Atoms     []string `json:"atoms,omitempty"`
}

// SendMessageInput is the input for the send_message tool.
type SendMessageInput struct {
	Window uint32   `json:"window" jsonschema:"required,Window the message concerns"`
	Type   string   `json:"type" jsonschema:"required,Message type atom name (e.g. _NET_ACTIVE_WINDOW)"`
	Data   []uint32 `json:"data,omitempty" jsonschema:"Up to five 32-bit data words"`
}

// SendMessageOutput is the output for the send_message tool.
type SendMessageOutput struct {
	Sent bool `json:"sent"`
}

// WatchEventsInput is the input for the watch_events tool.
type WatchEventsInput struct {
	Window    uint32   `json:"window,omitempty" jsonschema:"Only collect events naming this window (default: every event the connection sees)"`
	Events    []string `json:"events,omitempty" jsonschema:"Event names or group names to collect (default: all). Builtin groups: all, input, structure, property, focus."`
	MaxEvents int      `json:"max_events,omitempty" jsonschema:"Stop after this many events (default: 10, max: 100)"`
	Timeout   int      `json:"timeout,omitempty" jsonschema:"Stop after this many seconds (default: 10)"`
}

// EventRecord describes one collected event.
type EventRecord struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Event string `json:"event"`
}

// WatchEventsOutput is the output for the watch_events tool.
type WatchEventsOutput struct {
	Events   []EventRecord `json:"events"`
	TimedOut bool          `json:"timed_out"`
}

// ResolveKeyInput is the input for the resolve_key tool.
type ResolveKeyInput struct {
	Keycode int `json:"keycode" jsonschema:"required,Keycode from a key event"`
	State   int `json:"state,omitempty" jsonschema:"Modifier state bits from the event (shift=1, lock=2, control=4, ...)"`
}

// ResolveKeyOutput is the output for the resolve_key tool.
type ResolveKeyOutput struct {
	Keysym   uint32 `json:"keysym"`
	Name     string `json:"name,omitempty"`
	Rune     string `json:"rune,omitempty"`
	Modifier bool   `json:"modifier,omitempty"`
}
