package xmcp

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/xwin"
)

type stubItem struct {
	ev  xgb.Event
	err error
}

// stubTransport feeds scripted events to a Conn so handlers can run without a
// display. Events pushed before a handler installs its filter stay queued
// until the connection arms.
type stubTransport struct {
	mu     sync.Mutex
	queue  []stubItem
	err    error
	closed bool
	ready  chan struct{}
}

func newStubTransport() *stubTransport {
	return &stubTransport{ready: make(chan struct{}, 1)}
}

func (t *stubTransport) push(ev xgb.Event) {
	t.mu.Lock()
	t.queue = append(t.queue, stubItem{ev: ev})
	t.mu.Unlock()
	t.signal()
}

func (t *stubTransport) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

func (t *stubTransport) PollEvent() (xgb.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, nil
	}
	item := t.queue[0]
	t.queue = t.queue[1:]
	return item.ev, item.err
}

func (t *stubTransport) Ready() <-chan struct{} { return t.ready }

func (t *stubTransport) SetReadInterest(bool) {}

func (t *stubTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if t.err == nil {
			t.err = xkit.ErrClosed
		}
	}
	t.mu.Unlock()
	t.signal()
	return nil
}

// newTestServer builds a Server over a stub transport, skipping NewServer's
// dial and tool registration.
func newTestServer(t *testing.T) (*Server, *stubTransport) {
	t.Helper()
	cfg, err := watchcfg.BuildEffectiveConfig(watchcfg.RawConfig{})
	if err != nil {
		t.Fatalf("BuildEffectiveConfig: %v", err)
	}
	tr := newStubTransport()
	// The conn carries an atom cache like Dial's conns do, but only its
	// predefined seeds are reachable: the constructors return nil, so a
	// lookup that would touch the wire fails instead of blocking.
	conn := xkit.NewConn(tr, xkit.WithAtomRequests(xkit.AtomRequests{
		InternAtom:  func(string, bool) *xkit.Request { return nil },
		GetAtomName: func(xproto.Atom) *xkit.Request { return nil },
	}))
	t.Cleanup(func() { conn.Close() })
	return &Server{
		cfg:  cfg,
		conn: conn,
		reg:  xwin.NewRegistry(conn),
	}, tr
}

func TestHandleWatchEventsCollectsUpToMax(t *testing.T) {
	s, tr := newTestServer(t)

	tr.push(xproto.MotionNotifyEvent{Event: 5})
	tr.push(xproto.KeyPressEvent{Event: 5, Detail: 38})
	tr.push(xproto.KeyPressEvent{Event: 5, Detail: 40})
	tr.push(xproto.KeyPressEvent{Event: 5, Detail: 42})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, out, err := s.handleWatchEvents(ctx, nil, WatchEventsInput{
		Events:    []string{"KeyPress"},
		MaxEvents: 2,
	})
	if err != nil {
		t.Fatalf("handleWatchEvents: %v", err)
	}
	if out.TimedOut {
		t.Fatal("collection hit the deadline with events already queued")
	}
	if len(out.Events) != 2 {
		t.Fatalf("collected %d events, want 2", len(out.Events))
	}
	for _, rec := range out.Events {
		if rec.Code != xproto.KeyPress || rec.Name != "KeyPress" {
			t.Fatalf("record = %+v, want KeyPress", rec)
		}
		if rec.Event == "" {
			t.Fatal("record carries no event text")
		}
	}
}

func TestHandleWatchEventsTimesOut(t *testing.T) {
	s, tr := newTestServer(t)

	tr.push(xproto.PropertyNotifyEvent{Window: 9, Atom: xproto.AtomWmName})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, out, err := s.handleWatchEvents(ctx, nil, WatchEventsInput{MaxEvents: 5})
	if err != nil {
		t.Fatalf("handleWatchEvents: %v", err)
	}
	if !out.TimedOut {
		t.Fatal("expected the deadline to end the watch")
	}
	if len(out.Events) != 1 {
		t.Fatalf("collected %d events, want the 1 queued before the deadline", len(out.Events))
	}
	if out.Events[0].Name != "PropertyNotify" {
		t.Fatalf("event name = %q, want PropertyNotify", out.Events[0].Name)
	}
}

func TestHandleWatchEventsScopedToWindow(t *testing.T) {
	s, tr := newTestServer(t)

	tr.push(xproto.KeyPressEvent{Event: 88, Detail: 1})
	tr.push(xproto.KeyPressEvent{Event: 77, Detail: 2})
	tr.push(xproto.KeyPressEvent{Event: 77, Detail: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, out, err := s.handleWatchEvents(ctx, nil, WatchEventsInput{
		Window:    77,
		Events:    []string{"input"},
		MaxEvents: 2,
	})
	if err != nil {
		t.Fatalf("handleWatchEvents: %v", err)
	}
	if len(out.Events) != 2 {
		t.Fatalf("collected %d events, want the 2 naming window 77", len(out.Events))
	}
	for _, rec := range out.Events {
		if rec.Name != "KeyPress" {
			t.Fatalf("event name = %q, want KeyPress", rec.Name)
		}
	}
}

func TestDescribeProperty(t *testing.T) {
	s, _ := newTestServer(t)

	words := func(vals ...uint32) []byte {
		buf := make([]byte, 4*len(vals))
		for i, v := range vals {
			xgb.Put32(buf[4*i:], v)
		}
		return buf
	}

	t.Run("atom list resolves cached names", func(t *testing.T) {
		out := s.describeProperty(&xwin.Property{
			Type:   xproto.AtomAtom,
			Format: 32,
			Data:   words(uint32(xproto.AtomAtom), uint32(xproto.AtomCardinal), 99999),
		})
		if out.TypeName != "ATOM" {
			t.Fatalf("type name = %q, want ATOM", out.TypeName)
		}
		want := []string{"ATOM", "CARDINAL", "99999"}
		if !reflect.DeepEqual(out.Atoms, want) {
			t.Fatalf("atoms = %v, want %v", out.Atoms, want)
		}
	})

	t.Run("window list", func(t *testing.T) {
		out := s.describeProperty(&xwin.Property{
			Type:   xproto.AtomWindow,
			Format: 32,
			Data:   words(0x400001, 0x400002),
		})
		if !reflect.DeepEqual(out.Windows, []uint32{0x400001, 0x400002}) {
			t.Fatalf("windows = %v", out.Windows)
		}
	})

	t.Run("cardinals", func(t *testing.T) {
		out := s.describeProperty(&xwin.Property{
			Type:   xproto.AtomCardinal,
			Format: 32,
			Data:   words(1920, 1080),
		})
		if !reflect.DeepEqual(out.Cardinals, []uint32{1920, 1080}) {
			t.Fatalf("cardinals = %v", out.Cardinals)
		}
		if out.Bytes != 8 {
			t.Fatalf("bytes = %d, want 8", out.Bytes)
		}
	})

	t.Run("string list", func(t *testing.T) {
		out := s.describeProperty(&xwin.Property{
			Type:   xproto.AtomString,
			Format: 8,
			Data:   []byte("xterm\x00XTerm\x00"),
		})
		if out.Text != "xterm" {
			t.Fatalf("text = %q, want xterm", out.Text)
		}
		if !reflect.DeepEqual(out.Texts, []string{"xterm", "XTerm"}) {
			t.Fatalf("texts = %v", out.Texts)
		}
	})

	t.Run("single string keeps texts empty", func(t *testing.T) {
		out := s.describeProperty(&xwin.Property{
			Type:   xproto.AtomString,
			Format: 8,
			Data:   []byte("hello"),
		})
		if out.Text != "hello" || out.Texts != nil {
			t.Fatalf("text = %q texts = %v, want bare hello", out.Text, out.Texts)
		}
	})
}

func TestToolArgumentValidation(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	if _, _, err := s.handleInternAtom(ctx, nil, InternAtomInput{Name: "  "}); err == nil {
		t.Fatal("intern_atom accepted a blank name")
	}
	if _, _, err := s.handleAtomName(ctx, nil, AtomNameInput{}); err == nil {
		t.Fatal("atom_name accepted atom 0")
	}
	if _, _, err := s.handleGetProperty(ctx, nil, GetPropertyInput{Window: 5}); err == nil {
		t.Fatal("get_property accepted a blank name")
	}
	if _, _, err := s.handleSendMessage(ctx, nil, SendMessageInput{Type: "_NET_CLOSE_WINDOW"}); err == nil {
		t.Fatal("send_message accepted window 0")
	}
	if _, _, err := s.handleSendMessage(ctx, nil, SendMessageInput{Window: 7}); err == nil {
		t.Fatal("send_message accepted a blank type")
	}
	if _, _, err := s.handleSendMessage(ctx, nil, SendMessageInput{
		Window: 7,
		Type:   "_NET_WM_DESKTOP",
		Data:   []uint32{1, 2, 3, 4, 5, 6},
	}); err == nil {
		t.Fatal("send_message accepted 6 data words")
	}
	if _, _, err := s.handleResolveKey(ctx, nil, ResolveKeyInput{Keycode: 3}); err == nil {
		t.Fatal("resolve_key accepted keycode 3")
	}
	if _, _, err := s.handleWatchEvents(ctx, nil, WatchEventsInput{Events: []string{"bogus"}}); err == nil {
		t.Fatal("watch_events accepted an unknown event name")
	}
}
