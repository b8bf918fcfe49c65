package bridge

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChiR24/Unreal-mcp-sub002/internal/config"
	"github.com/ChiR24/Unreal-mcp-sub002/internal/obs"
	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/ChiR24/Unreal-mcp-sub002/pkg/websocket"
	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the coordinator's view of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithDialer replaces the factory used for each connection attempt.
func WithDialer(dialer websocket.Dialer) Option {
	return func(c *Coordinator) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithMetrics records bridge counters into m.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithManualTick skips the internal ticker; the host must call Tick itself.
func WithManualTick() Option {
	return func(c *Coordinator) {
		c.manualTick = true
	}
}

// Coordinator owns one websocket connection at a time for a periodically
// ticked host. It reconnects after failures and hands inbound messages to
// the host on the goroutine that calls Tick.
type Coordinator struct {
	cfg        config.Config
	backoff    websocket.Backoff
	dialer     websocket.Dialer
	metrics    *obs.Metrics
	manualTick bool
	pending    *pendingQueue

	state atomic.Int32

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	running        bool
	reconnect      bool
	conn           websocket.Conn
	subs           []websocket.Subscription
	generation     uint64
	countdown      time.Duration
	attempt        int
	attemptStarted time.Time
	pingElapsed    time.Duration

	messageEvt websocket.Event[Request]
	stateEvt   websocket.Event[State]
}

// New builds a stopped coordinator.
func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		backoff: cfg.Backoff(),
		dialer:  websocket.DefaultDialer,
		metrics: obs.NewMetrics(),
		pending: newPendingQueue(cfg.MaxPending),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Metrics returns the counters the coordinator records into.
func (c *Coordinator) Metrics() *obs.Metrics {
	return c.metrics
}

// Pending returns the number of messages waiting for the next tick.
func (c *Coordinator) Pending() int {
	return c.pending.len()
}

// OnMessage registers a listener for inbound text messages. Listeners run on
// the goroutine calling Tick.
func (c *Coordinator) OnMessage(fn func(req Request)) websocket.Subscription {
	return c.messageEvt.Subscribe(fn)
}

// OnStateChange registers a listener for state transitions. Listeners may run
// on the websocket receive goroutine.
func (c *Coordinator) OnStateChange(fn func(s State)) websocket.Subscription {
	return c.stateEvt.Subscribe(fn)
}

// Unsubscribe removes coordinator listeners.
func (c *Coordinator) Unsubscribe(subs ...websocket.Subscription) {
	for _, sub := range subs {
		_ = c.messageEvt.Unsubscribe(sub) || c.stateEvt.Unsubscribe(sub)
	}
}

// StartBridge enables reconnection, starts the ticker unless ticking is
// manual, and attempts the first connection immediately.
func (c *Coordinator) StartBridge(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.reconnect = c.backoff.Enabled()
	c.attempt = 0
	c.countdown = 0
	c.ctx, c.cancel = context.WithCancel(ctx)
	tickCtx := c.ctx
	c.mu.Unlock()

	if !c.reconnect {
		logs.Infof("bridge: auto-reconnect disabled (reconnect delay %s)", c.cfg.ReconnectDelay)
	}
	if !c.manualTick {
		go c.tickLoop(tickCtx)
	}
	return c.AttemptConnection()
}

func (c *Coordinator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Tick(now.Sub(last))
			last = now
		}
	}
}

// StopBridge stops ticking, disables reconnection and closes the current
// connection after unsubscribing from it. The state is always Disconnected
// afterwards and queued messages are discarded.
func (c *Coordinator) StopBridge() {
	c.mu.Lock()
	c.running = false
	c.reconnect = false
	cancel := c.cancel
	c.cancel = nil
	conn, subs := c.conn, c.subs
	c.conn, c.subs = nil, nil
	c.generation++
	changed := c.setState(StateDisconnected)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Unsubscribe(subs...)
		if err := conn.Close(websocket.CloseNormal, "bridge stopped"); err != nil {
			logs.Errorf("bridge: close on stop, err: %+v", err)
		}
	}
	if n := c.pending.clear(); n > 0 {
		logs.Infof("bridge: discarded %d pending messages on stop", n)
	}
	if changed {
		c.stateEvt.Emit(StateDisconnected)
	}
	logs.Info("bridge: stopped")
}

// Tick drains pending messages to OnMessage listeners, counts down the
// reconnect timer while Disconnected and sends keepalive pings while
// Connected.
func (c *Coordinator) Tick(delta time.Duration) {
	c.Drain()

	c.mu.Lock()
	switch c.State() {
	case StateDisconnected:
		if !c.running || !c.reconnect {
			c.mu.Unlock()
			return
		}
		c.countdown -= delta
		if c.countdown > 0 {
			c.mu.Unlock()
			return
		}
		c.countdown = c.backoff.Next(c.attempt)
		c.mu.Unlock()
		if err := c.AttemptConnection(); err != nil {
			logs.Errorf("bridge: reconnect attempt, err: %+v", err)
		}
		return
	case StateConnected:
		if c.cfg.PingInterval <= 0 || c.conn == nil {
			c.mu.Unlock()
			return
		}
		c.pingElapsed += delta
		if c.pingElapsed < c.cfg.PingInterval {
			c.mu.Unlock()
			return
		}
		c.pingElapsed = 0
		conn := c.conn
		c.mu.Unlock()
		if err := conn.Ping(nil); err != nil {
			logs.Errorf("bridge: ping, err: %+v", err)
			return
		}
		c.metrics.Inc(obs.PingsSent)
		return
	default:
		c.mu.Unlock()
	}
}

// Drain hands every queued message from the current connection to the
// OnMessage listeners on the calling goroutine. Messages from a replaced
// connection are dropped.
func (c *Coordinator) Drain() int {
	reqs := c.pending.drain()
	if len(reqs) == 0 {
		return 0
	}
	c.mu.Lock()
	current := c.generation
	c.mu.Unlock()

	delivered := 0
	for _, req := range reqs {
		if req.Connection != current {
			c.metrics.Inc(obs.StaleDrops)
			logs.Infof("bridge: drop message %s from replaced connection", req.ID)
			continue
		}
		c.metrics.ObserveDispatch(time.Since(req.ReceivedAt))
		c.messageEvt.Emit(req)
		delivered++
	}
	return delivered
}

// AttemptConnection tears down the current connection, if any, and starts a
// new one. Listeners on the old connection are removed before it is closed
// so it can never deliver events afterwards. The handshake runs on its own
// goroutine; the outcome arrives through the connection's events.
func (c *Coordinator) AttemptConnection() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return exception.ErrBridgeStopped
	}
	old, oldSubs := c.conn, c.subs
	c.conn, c.subs = nil, nil
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if old != nil {
		old.Unsubscribe(oldSubs...)
		if err := old.Close(websocket.CloseGoingAway, "reconnecting"); err != nil {
			logs.Errorf("bridge: close replaced connection, err: %+v", err)
		}
	}

	conn, err := c.dialer(c.cfg.Endpoint, c.cfg.SocketOption())
	if err != nil {
		c.handleDisconnect(gen, errors.Wrap(err, "build connection").Error())
		return err
	}
	subs := []websocket.Subscription{
		conn.OnConnected(func() { c.onConnected(gen) }),
		conn.OnConnectionError(func(err error) { c.handleDisconnect(gen, err.Error()) }),
		conn.OnClosed(func(ev websocket.CloseEvent) { c.onClosed(gen, ev) }),
		conn.OnMessage(func(payload string) { c.onMessage(gen, payload) }),
		conn.OnBinaryMessage(func(payload []byte) { c.onBinaryMessage(gen, payload) }),
	}

	c.mu.Lock()
	if !c.running || c.generation != gen {
		c.mu.Unlock()
		conn.Unsubscribe(subs...)
		_ = conn.Close(websocket.CloseGoingAway, "superseded")
		return exception.ErrBridgeStopped
	}
	c.conn, c.subs = conn, subs
	c.attemptStarted = time.Now()
	changed := c.setState(StateConnecting)
	ctx := c.ctx
	c.mu.Unlock()

	c.metrics.Inc(obs.ConnectAttempts)
	if changed {
		c.stateEvt.Emit(StateConnecting)
	}
	logs.Infof("bridge: connecting to %s", c.cfg.Endpoint)
	go func() {
		_ = conn.Connect(ctx)
	}()
	return nil
}

// SendRawMessage sends text on the current connection and reports whether
// it was written.
func (c *Coordinator) SendRawMessage(text string) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.State() != StateConnected {
		return false
	}
	if err := conn.SendText(text); err != nil {
		c.metrics.Inc(obs.SendFailures)
		logs.Errorf("bridge: send, err: %+v", err)
		return false
	}
	c.metrics.Inc(obs.MessagesOut)
	return true
}

func (c *Coordinator) onConnected(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.attempt = 0
	c.pingElapsed = 0
	started := c.attemptStarted
	changed := c.setState(StateConnected)
	c.mu.Unlock()

	c.metrics.Inc(obs.Connects)
	c.metrics.ObserveHandshake(time.Since(started))

	hello, err := c.helloPayload()
	if err != nil {
		logs.Errorf("bridge: encode hello, err: %+v", err)
	} else if err := conn.SendText(hello); err != nil {
		c.metrics.Inc(obs.SendFailures)
		logs.Errorf("bridge: send hello, err: %+v", err)
	} else {
		c.metrics.Inc(obs.MessagesOut)
	}

	logs.Infof("bridge: started, connected to %s", c.cfg.Endpoint)
	if changed {
		c.stateEvt.Emit(StateConnected)
	}
}

func (c *Coordinator) onClosed(gen uint64, ev websocket.CloseEvent) {
	if !ev.WasClean {
		c.metrics.Inc(obs.UncleanDisconnects)
	}
	c.handleDisconnect(gen, "closed "+closeSummary(ev))
}

// handleDisconnect releases the connection and schedules the next attempt.
func (c *Coordinator) handleDisconnect(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	wasConnected := c.State() == StateConnected
	conn, subs := c.conn, c.subs
	c.conn, c.subs = nil, nil
	c.attempt++
	c.countdown = c.backoff.Next(c.attempt)
	retry := c.running && c.reconnect
	wait := c.countdown
	changed := c.setState(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Unsubscribe(subs...)
	}
	if wasConnected {
		c.metrics.Inc(obs.Disconnects)
	} else {
		c.metrics.Inc(obs.ConnectErrors)
	}
	if retry {
		logs.Infof("bridge: disconnected (%s), retry in %s", reason, wait)
	} else {
		logs.Infof("bridge: disconnected (%s), not retrying", reason)
	}
	if changed {
		c.stateEvt.Emit(StateDisconnected)
	}
}

func (c *Coordinator) onMessage(gen uint64, payload string) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		c.metrics.Inc(obs.StaleDrops)
		return
	}

	req := Request{
		ID:         uuid.NewString(),
		Payload:    payload,
		Connection: gen,
		ReceivedAt: time.Now(),
	}
	if !c.pending.push(req) {
		c.metrics.Inc(obs.PendingDrops)
		logs.Errorf("bridge: drop message %s, err: %+v", req.ID, exception.ErrBridgeQueueFull)
		return
	}
	c.metrics.Inc(obs.MessagesIn)
}

func (c *Coordinator) onBinaryMessage(_ uint64, payload []byte) {
	c.metrics.Inc(obs.BinaryDropped)
	logs.Infof("bridge: ignore %d byte binary message", len(payload))
}

// setState must be called with mu held. Listeners are notified by the
// caller after unlocking.
func (c *Coordinator) setState(s State) bool {
	return State(c.state.Swap(int32(s))) != s
}

func closeSummary(ev websocket.CloseEvent) string {
	summary := "code " + strconv.Itoa(int(ev.Code))
	if ev.Reason != "" {
		summary += " reason " + ev.Reason
	}
	if !ev.WasClean {
		summary += " unclean"
	}
	return summary
}
