package xkit

import (
	"io"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// wireSequenceJump matches the 16-bit sequence numbers xgb reports from the
// wire: a drop of more than 2^14 behind the newest number is treated as
// wraparound rather than reordering.
const wireSequenceJump = 1 << 14

type wireItem struct {
	ev  xgb.Event
	err error
}

// wireTransport adapts an *xgb.Conn to Transport. xgb reads the socket
// eagerly on its own goroutine, so the pump buffers whatever arrives and
// readiness is reported over a one-slot signal channel.
type wireTransport struct {
	xc *xgb.Conn

	mu    sync.Mutex
	queue []wireItem
	err   error

	ready chan struct{}
	once  sync.Once
}

func newWireTransport(xc *xgb.Conn) *wireTransport {
	t := &wireTransport{xc: xc, ready: make(chan struct{}, 1)}
	go t.pump()
	return t
}

func (t *wireTransport) pump() {
	for {
		ev, xerr := t.xc.WaitForEvent()
		if ev == nil && xerr == nil {
			t.fail(io.EOF)
			return
		}
		var err error
		if xerr != nil {
			err = xerr
		}
		t.mu.Lock()
		t.queue = append(t.queue, wireItem{ev: ev, err: err})
		t.mu.Unlock()
		t.signal()
	}
}

func (t *wireTransport) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.signal()
}

func (t *wireTransport) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

func (t *wireTransport) PollEvent() (xgb.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, nil
	}
	it := t.queue[0]
	t.queue = t.queue[1:]
	return it.ev, it.err
}

func (t *wireTransport) Ready() <-chan struct{} { return t.ready }

// SetReadInterest is a no-op here: xgb drains the socket on its own
// goroutine regardless, so interest only gates delivery. Buffered items wait
// until the dispatcher asks for them.
func (t *wireTransport) SetReadInterest(bool) {}

func (t *wireTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *wireTransport) Close() error {
	t.once.Do(func() {
		t.fail(ErrClosed)
		t.xc.Close()
	})
	return nil
}

// wireAtomRequests issues atom lookups straight over the xgb connection.
func wireAtomRequests(xc *xgb.Conn) AtomRequests {
	return AtomRequests{
		InternAtom: func(name string, onlyIfExists bool) *Request {
			ck := xproto.InternAtom(xc, onlyIfExists, uint16(len(name)), name)
			return &Request{
				Sequence: uint64(ck.Sequence),
				Fetch:    func() (interface{}, error) { return ck.Reply() },
			}
		},
		GetAtomName: func(atom xproto.Atom) *Request {
			ck := xproto.GetAtomName(xc, atom)
			return &Request{
				Sequence: uint64(ck.Sequence),
				Fetch:    func() (interface{}, error) { return ck.Reply() },
			}
		},
	}
}
