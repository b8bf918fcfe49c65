package websocket

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Option configures a Client. Zero values fall back to the Default* constants.
type Option struct {
	// Protocols is offered in Sec-WebSocket-Protocol.
	Protocols []string
	// Header is sent with the upgrade request, e.g. a capability token.
	Header http.Header
	// TLSConfig is used for wss:// endpoints.
	TLSConfig *tls.Config

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// CloseTimeout bounds how long Close waits for the peer's close frame.
	CloseTimeout time.Duration
	KeepAlive    time.Duration
	// MaxPayloadSize limits a single frame and a reassembled message.
	MaxPayloadSize int
	BufferPool     *BufferPool
}

func (o Option) withDefaults() Option {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.MaxPayloadSize <= 0 {
		o.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if o.BufferPool == nil {
		o.BufferPool = DefaultBufferPool()
	}
	return o
}

type closeInfo struct {
	code   CloseCode
	reason string
}

// Client is an RFC 6455 client for one connection. After a successful
// handshake a dedicated goroutine runs the receive loop and fires the
// events; listeners run on that goroutine.
//
// A Client is single use: once Closed, build a new one to reconnect.
type Client struct {
	endpoint Endpoint
	opt      Option
	key      string

	state     atomic.Int32
	connected atomic.Bool
	lastPong  atomic.Int64

	connMu        sync.Mutex
	conn          net.Conn
	subprotocol   string
	cancelConnect context.CancelFunc

	writeMu sync.Mutex

	// closeMu orders a local Close against a close frame from the peer.
	closeMu     sync.Mutex
	local       *closeInfo
	peerClosed  bool
	closedFired atomic.Bool
	done        chan struct{}
	doneOnce    sync.Once

	connectedEvt Event[struct{}]
	errorEvt     Event[error]
	closedEvt    Event[CloseEvent]
	messageEvt   Event[string]
	binaryEvt    Event[[]byte]
}

// NewClient parses rawURL and prepares a client. No socket is opened until Connect.
func NewClient(rawURL string, opt Option) (*Client, error) {
	endpoint, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	key, err := newWebSocketKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate handshake key")
	}
	return &Client{
		endpoint: endpoint,
		opt:      opt.withDefaults(),
		key:      key,
		done:     make(chan struct{}),
	}, nil
}

// Endpoint returns the parsed target.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// State returns the current protocol state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the connection is open. Safe from any goroutine.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Subprotocol returns the protocol selected by the server, if any.
func (c *Client) Subprotocol() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.subprotocol
}

// LastPong returns when the last pong arrived, or the zero time.
func (c *Client) LastPong() time.Time {
	n := c.lastPong.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Done is closed once the client reaches a terminal state and the receive
// loop, if any, has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// OnConnected fires once after a successful handshake.
func (c *Client) OnConnected(fn func()) Subscription {
	if fn == nil {
		return 0
	}
	return c.connectedEvt.Subscribe(func(struct{}) { fn() })
}

// OnConnectionError fires when Connect fails before the handshake completes.
func (c *Client) OnConnectionError(fn func(err error)) Subscription {
	return c.errorEvt.Subscribe(fn)
}

// OnClosed fires at most once per client.
func (c *Client) OnClosed(fn func(ev CloseEvent)) Subscription {
	return c.closedEvt.Subscribe(fn)
}

// OnMessage fires once per reassembled text message.
func (c *Client) OnMessage(fn func(payload string)) Subscription {
	return c.messageEvt.Subscribe(fn)
}

// OnBinaryMessage fires once per reassembled binary message.
func (c *Client) OnBinaryMessage(fn func(payload []byte)) Subscription {
	return c.binaryEvt.Subscribe(fn)
}

// Unsubscribe removes listeners from whichever event holds them.
func (c *Client) Unsubscribe(subs ...Subscription) {
	for _, sub := range subs {
		_ = c.connectedEvt.Unsubscribe(sub) ||
			c.errorEvt.Unsubscribe(sub) ||
			c.closedEvt.Unsubscribe(sub) ||
			c.messageEvt.Unsubscribe(sub) ||
			c.binaryEvt.Unsubscribe(sub)
	}
}

// UnsubscribeAll removes every listener.
func (c *Client) UnsubscribeAll() {
	c.connectedEvt.Clear()
	c.errorEvt.Clear()
	c.closedEvt.Clear()
	c.messageEvt.Clear()
	c.binaryEvt.Clear()
}

// Connect resolves, dials and runs the opening handshake, blocking until it
// completes. On success the state is Open, Connected fires and the receive
// loop starts. On failure ConnectionError fires and the error is returned.
// Connect may be called once per client.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return exception.ErrWebSocketBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.connMu.Lock()
	c.cancelConnect = cancel
	c.connMu.Unlock()

	conn, reader, subprotocol, err := c.dial(ctx)
	if err != nil {
		err = errors.Wrap(err, "connect "+c.endpoint.String())
		c.failConnect(err)
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.subprotocol = subprotocol
	c.cancelConnect = nil
	c.connMu.Unlock()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		_ = conn.Close()
		err := errors.Wrap(exception.ErrWebSocketConnectionClose, "closed during handshake")
		c.failConnect(err)
		return err
	}
	c.connected.Store(true)

	c.connectedEvt.Emit(struct{}{})
	go c.readLoop(reader)
	return nil
}

func (c *Client) failConnect(err error) {
	c.state.Store(int32(StateClosed))
	logs.Errorf("websocket: %+v", err)
	c.errorEvt.Emit(err)
	c.markDone()
}

// SendText sends one unfragmented text message.
func (c *Client) SendText(text string) error {
	if !c.connected.Load() {
		return exception.ErrWebSocketNotOpen
	}
	return c.writeFrame(opText, []byte(text))
}

// SendBinary sends one unfragmented binary message.
func (c *Client) SendBinary(payload []byte) error {
	if !c.connected.Load() {
		return exception.ErrWebSocketNotOpen
	}
	return c.writeFrame(opBinary, payload)
}

// Ping sends a ping control frame. Payloads over 125 bytes are rejected.
func (c *Client) Ping(payload []byte) error {
	if !c.connected.Load() {
		return exception.ErrWebSocketNotOpen
	}
	if len(payload) > maxControlLen {
		return exception.ErrWebSocketFrameTooLarge
	}
	return c.writeFrame(opPing, payload)
}

// Close starts the closing handshake and waits up to CloseTimeout for the
// peer's close frame before tearing the socket down. Closed has fired by the
// time Close returns unless it is called from a listener. Closing an idle client
// fires Closed with WasClean set; closing a connecting client aborts the
// handshake, which surfaces as ConnectionError. Further calls are no-ops.
func (c *Client) Close(code CloseCode, reason string) error {
	if code == 0 {
		code = CloseNormal
	}
	for {
		switch State(c.state.Load()) {
		case StateIdle:
			if c.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
				c.emitClosed(CloseEvent{Code: code, Reason: reason, WasClean: true})
				c.markDone()
				return nil
			}
		case StateConnecting:
			if c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
				c.abortConnect()
				return nil
			}
		case StateOpen:
			c.closeMu.Lock()
			if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
				c.closeMu.Unlock()
				continue
			}
			c.local = &closeInfo{code: code, reason: reason}
			c.connected.Store(false)
			c.closeMu.Unlock()

			err := c.writeFrame(opClose, makeClosePayload(code, reason))
			if err != nil {
				c.closeConn()
				c.awaitPeerClose()
				return errors.Wrap(err, "write close frame")
			}
			c.awaitPeerClose()
			return nil
		default:
			return nil
		}
	}
}

// Stop tears the connection down without the closing handshake. It unblocks
// the receive loop by closing the socket and may be called from any goroutine.
func (c *Client) Stop() {
	for {
		switch State(c.state.Load()) {
		case StateIdle:
			if c.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
				c.emitClosed(CloseEvent{Code: CloseGoingAway, WasClean: true})
				c.markDone()
				return
			}
		case StateConnecting:
			if c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
				c.abortConnect()
				return
			}
		case StateOpen:
			c.closeMu.Lock()
			if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
				c.closeMu.Unlock()
				continue
			}
			c.local = &closeInfo{code: CloseGoingAway}
			c.connected.Store(false)
			c.closeMu.Unlock()
			c.closeConn()
			return
		default:
			c.closeConn()
			return
		}
	}
}

func (c *Client) abortConnect() {
	c.connMu.Lock()
	cancel := c.cancelConnect
	c.connMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// awaitPeerClose waits for the receive loop to see the peer's close frame.
// On timeout the socket is closed and the wait repeats once so Closed has
// fired before the caller returns. When called from a listener on the
// receive goroutine both waits time out; the loop finishes once the
// listener returns.
func (c *Client) awaitPeerClose() {
	timer := time.NewTimer(c.opt.CloseTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return
	case <-timer.C:
	}

	c.closeConn()
	timer.Reset(c.opt.CloseTimeout)
	select {
	case <-c.done:
	case <-timer.C:
	}
}

func (c *Client) readLoop(reader *bufio.Reader) {
	defer c.markDone()

	var msg fragment
	for {
		h, err := readFrameHeader(reader, c.opt.MaxPayloadSize)
		if err != nil {
			c.fail(err)
			return
		}
		if err := h.validate(); err != nil {
			c.fail(err)
			return
		}
		if h.opcode == opContinuation && msg.active && msg.size()+h.length > c.opt.MaxPayloadSize {
			c.fail(exception.ErrWebSocketFrameTooLarge)
			return
		}

		payload := make([]byte, h.length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			c.fail(err)
			return
		}

		switch h.opcode {
		case opText, opBinary:
			if msg.active {
				c.fail(exception.ErrWebSocketFragmentation)
				return
			}
			if !h.fin {
				msg.begin(h.opcode, payload)
				continue
			}
			if err := c.deliver(h.opcode, payload); err != nil {
				c.fail(err)
				return
			}
		case opContinuation:
			if !msg.active {
				c.fail(exception.ErrWebSocketFragmentation)
				return
			}
			msg.append(payload)
			if !h.fin {
				continue
			}
			if err := c.deliver(msg.take()); err != nil {
				c.fail(err)
				return
			}
		case opPing:
			_ = c.writeFrame(opPong, payload)
		case opPong:
			c.lastPong.Store(time.Now().UnixNano())
		case opClose:
			code, reason, err := parseClosePayload(payload)
			if err != nil {
				c.fail(err)
				return
			}
			c.handlePeerClose(code, reason)
			return
		}
	}
}

func (c *Client) deliver(opcode byte, payload []byte) error {
	if opcode == opBinary {
		c.binaryEvt.Emit(payload)
		return nil
	}
	if !utf8.Valid(payload) {
		return exception.ErrWebSocketInvalidUTF8
	}
	c.messageEvt.Emit(string(payload))
	return nil
}

func (c *Client) handlePeerClose(code CloseCode, reason string) {
	c.closeMu.Lock()
	c.peerClosed = true
	local := c.local
	if local == nil {
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		c.connected.Store(false)
	}
	c.closeMu.Unlock()

	if local != nil {
		c.finish(CloseEvent{Code: local.code, Reason: local.reason, WasClean: true})
		return
	}

	_ = c.writeFrame(opClose, makeClosePayload(code, ""))
	c.finish(CloseEvent{Code: code, Reason: reason, WasClean: true})
}

// fail ends the receive loop after a read or protocol error.
func (c *Client) fail(err error) {
	c.closeMu.Lock()
	local := c.local
	code := closeCodeFor(err)
	sendClose := local == nil && code != CloseAbnormal
	if local == nil {
		c.local = &closeInfo{code: code}
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		c.connected.Store(false)
	}
	c.closeMu.Unlock()

	if local != nil {
		c.finish(CloseEvent{Code: local.code, Reason: local.reason, WasClean: false})
		return
	}

	if sendClose {
		_ = c.writeFrame(opClose, makeClosePayload(code, ""))
	}
	logs.Errorf("websocket: receive loop for %s stopped, err: %+v", c.endpoint.String(), err)

	reason := ""
	if code != CloseAbnormal {
		reason = err.Error()
	}
	c.finish(CloseEvent{Code: code, Reason: reason, WasClean: false})
}

func (c *Client) finish(ev CloseEvent) {
	c.connected.Store(false)
	c.state.Store(int32(StateClosed))
	c.closeConn()
	c.emitClosed(ev)
}

func (c *Client) emitClosed(ev CloseEvent) {
	if c.closedFired.CompareAndSwap(false, true) {
		c.closedEvt.Emit(ev)
	}
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// writeFrame masks payload into a pooled buffer with a fresh key and writes
// the frame in one call. The caller's payload is left untouched.
func (c *Client) writeFrame(opcode byte, payload []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return exception.ErrWebSocketNotOpen
	}

	maskKey, err := newMaskKey()
	if err != nil {
		return errors.Wrap(err, "generate mask key")
	}
	buf := c.opt.BufferPool.Get(maxHeaderLen + len(payload))
	frame := appendFrame(buf[:0], opcode, payload, maskKey)
	defer c.opt.BufferPool.Put(frame)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opt.WriteTimeout))
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	return nil
}
