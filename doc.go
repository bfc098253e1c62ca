/*
Package xkit is an asynchronous X11 client toolkit built on top of
github.com/BurntSushi/xgb.

xgb gives every request a cookie and every caller a blocking WaitForEvent;
what it does not give you is a way for many goroutines to share one
connection's two response streams (server-pushed events and
request-correlated replies) without stepping on each other. xkit adds that
layer: a Conn owns one dispatcher that interleaves reply servicing and event
fan-out over a single transport, keeping replies strictly FIFO and letting
any number of event filters observe the stream.

The pieces:

  - Conn: the multiplexer. Register event filters with AddEventFilter, wait
    for a single event with WaitForEvent, and correlate replies with
    WaitForReply. One dispatcher goroutine services both streams, replies
    first on every wake-up.
  - AtomCache: bidirectional name/atom cache with request coalescing, so two
    concurrent lookups of the same name cost one round trip.
  - Package keymap: keycode-to-keysym resolution implementing the core
    protocol's modifier rules (shift, caps/shift lock, num lock, mode
    switch).
  - Package xwin: window, pixmap, cursor, graphics-context and region
    wrappers plus a per-connection window registry that redelivers events
    down the window hierarchy.

Open a connection with Dial, which wires all of the above to a live xgb
connection:

	c, err := xkit.Dial("")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ev, err := c.WaitForEvent(ctx, xproto.KeyPress)

Custom transports (including test doubles) plug in through NewConn and the
Transport interface.
*/
package xkit
