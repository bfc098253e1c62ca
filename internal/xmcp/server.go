// Package xmcp exposes an X11 connection over the Model Context Protocol:
// window listing and tree walks, atom lookups, property reads, client
// messages, bounded event watches and keymap resolution, each as one tool.
package xmcp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/evlog"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/keymap"
	"github.com/1broseidon/xkit/xwin"
)

const (
	ServerName    = "xkit"
	ServerVersion = "0.1.0"
)

// preloadTimeout bounds the atom warm-up at startup.
const preloadTimeout = 5 * time.Second

// Server is the MCP server over one X11 connection.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       *watchcfg.Config
	conn      *xkit.Conn
	reg       *xwin.Registry
	logger    *evlog.Logger

	mu   sync.Mutex
	keys *keymap.Table
}

// NewServer dials the configured display and builds the tool surface.
func NewServer(cfg *watchcfg.Config) (*Server, error) {
	conn, err := xkit.Dial(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to display: %w", err)
	}

	var logger *evlog.Logger
	if cfg.Logging.Enabled {
		logger, err = evlog.New(evlog.Config{
			Enabled:   cfg.Logging.Enabled,
			Level:     evlog.ParseLevel(cfg.Logging.Level),
			FilePath:  cfg.Logging.File,
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
		})
		if err != nil {
			log.Printf("Warning: failed to initialize event logger: %v", err)
			logger = nil
		}
	}

	s := &Server{
		cfg:    cfg,
		conn:   conn,
		reg:    xwin.NewRegistry(conn),
		logger: logger,
	}

	s.preloadAtoms()

	// Keyboard and modifier mappings go stale when the server announces a
	// mapping change; the next resolve_key refetches them.
	if err := conn.AddEventFilter(s, s.invalidateKeymap, xproto.MappingNotify); err != nil {
		conn.Close()
		return nil, err
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the connection and the logger.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.conn.DiscardEventFilter(s)
	s.reg.Close()
	err := s.conn.Close()
	if lerr := s.logger.Close(); err == nil {
		err = lerr
	}
	return err
}

func (s *Server) preloadAtoms() {
	if len(s.cfg.PreloadAtoms) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()
	atoms := s.conn.Atoms()
	for _, name := range s.cfg.PreloadAtoms {
		if _, err := atoms.Atom(ctx, name, true); err != nil {
			log.Printf("Warning: failed to preload atom %q: %v", name, err)
			return
		}
	}
}

func (s *Server) invalidateKeymap(ev xgb.Event, err error) {
	if err != nil {
		return
	}
	mn, ok := ev.(xproto.MappingNotifyEvent)
	if !ok || mn.Request == xproto.MappingPointer {
		return
	}
	s.mu.Lock()
	s.keys = nil
	s.mu.Unlock()
}

// keymapTable returns the cached keyboard mapping, fetching it on first use
// and after every MappingNotify.
func (s *Server) keymapTable(ctx context.Context) (*keymap.Table, error) {
	s.mu.Lock()
	t := s.keys
	s.mu.Unlock()
	if t != nil {
		return t, nil
	}
	t, err := keymap.Fetch(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys = t
	s.mu.Unlock()
	return t, nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the window manager's client windows with their EWMH names, WM_CLASS pairs, desktops and the active-window flag.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "window_tree",
		Description: "Walk the window tree below a window (the root by default) and return the nodes in visit order with their depth and best-effort names.",
	}, s.handleWindowTree)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_monitors",
		Description: "List the active monitors with their geometry, as reported by RandR.",
	}, s.handleListMonitors)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "intern_atom",
		Description: "Resolve an atom name to its id. With create=false a name the server never interned reports found=false instead of failing.",
	}, s.handleInternAtom)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "atom_name",
		Description: "Resolve an atom id back to its name.",
	}, s.handleAtomName)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_property",
		Description: "Read a window property (from the root window by default) and decode it by format and type: text, text lists, cardinals, window ids or atom names.",
	}, s.handleGetProperty)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "send_message",
		Description: "Broadcast a 32-bit client message about a window to the root window, the way EWMH pagers ask the window manager to act. Carries up to five data words.",
	}, s.handleSendMessage)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "watch_events",
		Description: "Collect incoming events for a bounded time, optionally filtered to event names or groups (all, input, structure, property, focus) and to events naming one window. Returns at most max_events records.",
	}, s.handleWatchEvents)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "resolve_key",
		Description: "Resolve a keycode and modifier state to a keysym using the server's current keyboard mapping, with its name and typed character when it has them.",
	}, s.handleResolveKey)
}

func (s *Server) logTool(tool string, fields map[string]interface{}) {
	record := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["tool"] = tool
	s.logger.Log(evlog.LevelInfo, "tool", record)
}
