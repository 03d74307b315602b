// Package client holds per-connection state: the decode buffer, outbound
// byte queue, and the grid views a client is currently subscribed to.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/chriswa/ptymuxd/internal/redraw"
	"github.com/chriswa/ptymuxd/internal/wire"
)

// DefaultMaxOutboundQueueBytes is the outbound queue cap New falls back
// to when given a non-positive maxOutboundBytes.
const DefaultMaxOutboundQueueBytes = 8 * 1024 * 1024

// Subscription identifies what a client is watching: either a single
// PTY's grid, or a session's active tab (which resolves to whichever
// pane is focused as that tab changes).
type Subscription struct {
	PtyID     int64
	SessionID string
	TabIndex  int
	IsSession bool
}

// Client is one connected RPC peer.
type Client struct {
	ID   int64
	conn net.Conn

	dec *wire.Decoder

	mu               sync.Mutex
	outbound         [][]byte
	outboundBytes    int
	maxOutboundBytes int
	closed           bool
	wake             chan struct{} // signaled (non-blockingly) whenever Enqueue adds a frame

	subscriptions map[int64]Subscription       // keyed by pty id
	Views         map[int64]*redraw.ClientView // keyed by grid id (pty id)

	// activeSessionName and activePtyID track the working session
	// split_pane and future layout operations act on; activeSessionName
	// is "" when the client is attached to a bare PTY rather than a
	// session.
	activeSessionName string
	activePtyID       int64

	nextMsgID int64
}

// New wraps conn as a Client with the given id. maxOutboundBytes bounds
// the outbound queue before the client is considered unresponsive and
// disconnected; a non-positive value falls back to
// DefaultMaxOutboundQueueBytes.
func New(id int64, conn net.Conn, maxOutboundBytes int) *Client {
	if maxOutboundBytes <= 0 {
		maxOutboundBytes = DefaultMaxOutboundQueueBytes
	}
	return &Client{
		ID:               id,
		conn:             conn,
		dec:              &wire.Decoder{},
		maxOutboundBytes: maxOutboundBytes,
		wake:             make(chan struct{}, 1),
		subscriptions:    make(map[int64]Subscription),
		Views:            make(map[int64]*redraw.ClientView),
	}
}

// Subscribe records that this client wants redraw/exit notifications for
// ptyID.
func (c *Client) Subscribe(ptyID int64, sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[ptyID] = sub
}

// Unsubscribe removes a previously recorded subscription.
func (c *Client) Unsubscribe(ptyID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, ptyID)
}

// IsSubscribed reports whether this client is currently subscribed to
// ptyID.
func (c *Client) IsSubscribed(ptyID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[ptyID]
	return ok
}

// SetActiveSession records the session name and focused pane a later
// split_pane (or other layout operation) should act on. Pass "" to clear
// it when the client detaches from its session.
func (c *Client) SetActiveSession(name string, ptyID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeSessionName = name
	c.activePtyID = ptyID
}

// ActiveSession returns the session name and focused pane set by the most
// recent SetActiveSession call, or ("", 0) if none.
func (c *Client) ActiveSession() (string, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSessionName, c.activePtyID
}

// ViewFor returns (creating if needed) the ClientView tracking gridID for
// this client.
func (c *Client) ViewFor(gridID int64) *redraw.ClientView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Views[gridID]
	if !ok {
		v = redraw.NewClientView(gridID)
		c.Views[gridID] = v
	}
	return v
}

// DropView removes tracked state for a grid the client is no longer
// subscribed to, so a later re-attach repaints from scratch.
func (c *Client) DropView(gridID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Views, gridID)
}

// Feed hands newly-read socket bytes to the decode buffer.
func (c *Client) Feed(data []byte) {
	c.dec.Feed(data)
}

// NextMessage decodes the next complete wire message buffered by Feed, if
// any.
func (c *Client) NextMessage() (wire.Message, bool, error) {
	return c.dec.Next()
}

// Enqueue appends an already-encoded frame to the outbound queue and
// wakes the write pump. It reports whether the queue remains within the
// configured cap; the caller should close a client for which this
// returns false, per the slow-client disconnect rule.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	c.outbound = append(c.outbound, frame)
	c.outboundBytes += len(frame)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return c.outboundBytes <= c.maxOutboundBytes
}

// Wake returns the channel a write pump should block on: it receives a
// value whenever Enqueue adds a frame, and is closed when the client
// closes so the pump can exit.
func (c *Client) Wake() <-chan struct{} {
	return c.wake
}

// DrainOne pops the oldest queued frame, if any.
func (c *Client) DrainOne() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outbound) == 0 {
		return nil, false
	}
	frame := c.outbound[0]
	c.outbound = c.outbound[1:]
	c.outboundBytes -= len(frame)
	return frame, true
}

// QueuedBytes reports the current outbound queue size.
func (c *Client) QueuedBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outboundBytes
}

// NextRequestID allocates a monotonic id for server-initiated requests
// (none are currently sent, but msgid allocation lives here rather than
// scattered across rpcserver so it stays single-sourced).
func (c *Client) NextRequestID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextMsgID++
	return c.nextMsgID
}

// Conn exposes the underlying connection for the server's write pump.
func (c *Client) Conn() net.Conn { return c.conn }

// Close marks the client closed, closes its socket, and closes the wake
// channel so a blocked write pump returns. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	if !already {
		close(c.wake)
	}
	c.mu.Unlock()
	if already {
		return nil
	}
	return c.conn.Close()
}

// String implements fmt.Stringer for log lines.
func (c *Client) String() string {
	return fmt.Sprintf("client#%d(%s)", c.ID, c.conn.RemoteAddr())
}
