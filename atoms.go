package xkit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
)

// AtomRequests binds an AtomCache to its two wire lookups. Each constructor
// writes the request to the wire and returns its correlation handle; Dial
// supplies xproto-backed constructors, tests supply scripted ones.
type AtomRequests struct {
	InternAtom  func(name string, onlyIfExists bool) *Request
	GetAtomName func(atom xproto.Atom) *Request
}

// AtomCache resolves atom names to server ids and back, caching both
// directions. Concurrent lookups of the same key share one in-flight wire
// request, and all lookups run through a single background drain goroutine,
// so the cache never has more than one atom request outstanding.
type AtomCache struct {
	c  *Conn
	rq AtomRequests

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	byName    map[string]xproto.Atom
	byAtom    map[xproto.Atom]string
	nameLooks map[string]*Future
	atomLooks map[xproto.Atom]*Future
	queue     []func()
	closed    error

	wakeCh chan struct{}
}

// NewAtomCache builds a cache issuing lookups over c, seeded with the
// predefined protocol atoms. Callers own its lifetime: Close it when done.
// Connections built by Dial carry their own cache (Conn.Atoms) and close it
// themselves.
func NewAtomCache(c *Conn, rq AtomRequests) *AtomCache {
	return newAtomCache(c, rq)
}

func newAtomCache(c *Conn, rq AtomRequests) *AtomCache {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AtomCache{
		c:         c,
		rq:        rq,
		ctx:       ctx,
		cancel:    cancel,
		byName:    make(map[string]xproto.Atom, len(predefinedAtoms)),
		byAtom:    make(map[xproto.Atom]string, len(predefinedAtoms)),
		nameLooks: make(map[string]*Future),
		atomLooks: make(map[xproto.Atom]*Future),
		wakeCh:    make(chan struct{}, 1),
	}
	a.seedLocked()
	go a.drain()
	return a
}

// Atom resolves name to its atom id, interning it on the server when create
// is true. With create false a name the server has never interned resolves
// to xproto.AtomNone with a nil error: an expected miss, not a failure, and
// never cached.
func (a *AtomCache) Atom(ctx context.Context, name string, create bool) (xproto.Atom, error) {
	a.mu.Lock()
	if atom, ok := a.byName[name]; ok {
		a.mu.Unlock()
		return atom, nil
	}
	if a.closed != nil {
		err := a.closed
		a.mu.Unlock()
		return xproto.AtomNone, err
	}
	shared, ok := a.nameLooks[name]
	if !ok {
		shared = newFuture()
		a.nameLooks[name] = shared
		a.enqueueLocked(a.internJob(name, !create, shared))
	}
	a.mu.Unlock()

	val, err := shared.Await(ctx)
	if err != nil {
		return xproto.AtomNone, err
	}
	return val.(xproto.Atom), nil
}

// Name resolves atom back to its name. Unlike name lookups there is no miss
// case: asking the server to name an atom it never assigned is an X error.
func (a *AtomCache) Name(ctx context.Context, atom xproto.Atom) (string, error) {
	if atom == xproto.AtomNone {
		return "", errors.New("atom None has no name")
	}
	a.mu.Lock()
	if name, ok := a.byAtom[atom]; ok {
		a.mu.Unlock()
		return name, nil
	}
	if a.closed != nil {
		err := a.closed
		a.mu.Unlock()
		return "", err
	}
	shared, ok := a.atomLooks[atom]
	if !ok {
		shared = newFuture()
		a.atomLooks[atom] = shared
		a.enqueueLocked(a.nameJob(atom, shared))
	}
	a.mu.Unlock()

	val, err := shared.Await(ctx)
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// CachedAtom reports the cached id for name without touching the wire.
func (a *AtomCache) CachedAtom(name string) (xproto.Atom, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	atom, ok := a.byName[name]
	return atom, ok
}

// CachedName reports the cached name for atom without touching the wire.
func (a *AtomCache) CachedName(atom xproto.Atom) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name, ok := a.byAtom[atom]
	return name, ok
}

// Flush drops every cached mapping; with reseed true the predefined protocol
// atoms are repopulated, which is the state fresh caches start from.
// In-flight lookups are unaffected and land in the fresh maps.
func (a *AtomCache) Flush(reseed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byName = make(map[string]xproto.Atom, len(predefinedAtoms))
	a.byAtom = make(map[xproto.Atom]string, len(predefinedAtoms))
	if reseed {
		a.seedLocked()
	}
}

// Close rejects pending lookups and stops the drain goroutine.
func (a *AtomCache) Close() {
	a.close(ErrClosed)
}

func (a *AtomCache) close(err error) {
	a.mu.Lock()
	if a.closed != nil {
		a.mu.Unlock()
		return
	}
	a.closed = err
	pendName := a.nameLooks
	pendAtom := a.atomLooks
	a.nameLooks = make(map[string]*Future)
	a.atomLooks = make(map[xproto.Atom]*Future)
	a.queue = nil
	a.mu.Unlock()

	a.cancel()
	for _, f := range pendName {
		f.resolve(nil, err)
	}
	for _, f := range pendAtom {
		f.resolve(nil, err)
	}
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

// enqueueLocked appends a lookup job and nudges the drain goroutine. Caller
// holds a.mu.
func (a *AtomCache) enqueueLocked(job func()) {
	a.queue = append(a.queue, job)
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

// drain executes queued lookups strictly one at a time: each job issues its
// request and awaits the reply before the next job starts, preserving the
// one-outstanding-lookup guarantee against the shared sequence tracker.
func (a *AtomCache) drain() {
	for {
		a.mu.Lock()
		var job func()
		if len(a.queue) > 0 {
			job = a.queue[0]
			a.queue = a.queue[1:]
		}
		closed := a.closed != nil
		a.mu.Unlock()

		if job != nil {
			job()
			continue
		}
		if closed {
			return
		}
		<-a.wakeCh
	}
}

// internJob resolves one name lookup. Ownership of the shared future is
// re-checked under the lock before settling, so a cache closed while the
// reply was in flight (which already rejected the future) is left alone.
func (a *AtomCache) internJob(name string, onlyIfExists bool, shared *Future) func() {
	return func() {
		req := a.rq.InternAtom(name, onlyIfExists)
		val, err := a.c.Reply(a.ctx, req)

		var atom xproto.Atom
		if err == nil {
			reply, ok := val.(*xproto.InternAtomReply)
			if !ok || reply == nil {
				err = fmt.Errorf("intern atom %q: unexpected reply %T", name, val)
			} else {
				atom = reply.Atom
			}
		}

		a.mu.Lock()
		if a.nameLooks[name] != shared {
			a.mu.Unlock()
			return
		}
		delete(a.nameLooks, name)
		if err == nil && atom != xproto.AtomNone {
			a.byName[name] = atom
			a.byAtom[atom] = name
		}
		a.mu.Unlock()

		if err != nil {
			shared.resolve(nil, err)
			return
		}
		shared.resolve(atom, nil)
	}
}

func (a *AtomCache) nameJob(atom xproto.Atom, shared *Future) func() {
	return func() {
		req := a.rq.GetAtomName(atom)
		val, err := a.c.Reply(a.ctx, req)

		var name string
		if err == nil {
			reply, ok := val.(*xproto.GetAtomNameReply)
			if !ok || reply == nil {
				err = fmt.Errorf("name of atom %d: unexpected reply %T", atom, val)
			} else {
				name = string(reply.Name)
			}
		}

		a.mu.Lock()
		if a.atomLooks[atom] != shared {
			a.mu.Unlock()
			return
		}
		delete(a.atomLooks, atom)
		if err == nil {
			a.byName[name] = atom
			a.byAtom[atom] = name
		}
		a.mu.Unlock()

		if err != nil {
			shared.resolve(nil, err)
			return
		}
		shared.resolve(name, nil)
	}
}

func (a *AtomCache) seedLocked() {
	for i, name := range predefinedAtoms {
		atom := xproto.Atom(i + 1)
		a.byName[name] = atom
		a.byAtom[atom] = name
	}
}

// predefinedAtoms lists the protocol's built-in atoms in id order, ids 1
// through 68. The server guarantees these without interning.
var predefinedAtoms = [...]string{
	"PRIMARY",
	"SECONDARY",
	"ARC",
	"ATOM",
	"BITMAP",
	"CARDINAL",
	"COLORMAP",
	"CURSOR",
	"CUT_BUFFER0",
	"CUT_BUFFER1",
	"CUT_BUFFER2",
	"CUT_BUFFER3",
	"CUT_BUFFER4",
	"CUT_BUFFER5",
	"CUT_BUFFER6",
	"CUT_BUFFER7",
	"DRAWABLE",
	"FONT",
	"INTEGER",
	"PIXMAP",
	"POINT",
	"RECTANGLE",
	"RESOURCE_MANAGER",
	"RGB_COLOR_MAP",
	"RGB_BEST_MAP",
	"RGB_BLUE_MAP",
	"RGB_DEFAULT_MAP",
	"RGB_GRAY_MAP",
	"RGB_GREEN_MAP",
	"RGB_RED_MAP",
	"STRING",
	"VISUALID",
	"WINDOW",
	"WM_COMMAND",
	"WM_HINTS",
	"WM_CLIENT_MACHINE",
	"WM_ICON_NAME",
	"WM_ICON_SIZE",
	"WM_NAME",
	"WM_NORMAL_HINTS",
	"WM_SIZE_HINTS",
	"WM_ZOOM_HINTS",
	"MIN_SPACE",
	"NORM_SPACE",
	"MAX_SPACE",
	"END_SPACE",
	"SUPERSCRIPT_X",
	"SUPERSCRIPT_Y",
	"SUBSCRIPT_X",
	"SUBSCRIPT_Y",
	"UNDERLINE_POSITION",
	"UNDERLINE_THICKNESS",
	"STRIKEOUT_ASCENT",
	"STRIKEOUT_DESCENT",
	"ITALIC_ANGLE",
	"X_HEIGHT",
	"QUAD_WIDTH",
	"WEIGHT",
	"POINT_SIZE",
	"RESOLUTION",
	"COPYRIGHT",
	"NOTICE",
	"FONT_NAME",
	"FAMILY_NAME",
	"FULL_NAME",
	"CAP_HEIGHT",
	"WM_CLASS",
	"WM_TRANSIENT_FOR",
}
