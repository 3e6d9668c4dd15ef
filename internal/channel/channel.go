package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/momento/internal/bus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrSignedOut = errors.New("channel closed for this session")

// Conn is the part of *websocket.Conn the channel uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens an authenticated connection.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// WebSocketDialer dials with github.com/coder/websocket.
func WebSocketDialer(client *http.Client) Dialer {
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
			HTTPClient: client,
			HTTPHeader: header,
		})
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(1 << 20)
		return conn, nil
	}
}

// HeaderSource yields the Authorization header for each connection attempt.
type HeaderSource interface {
	AuthHeader(ctx context.Context) (string, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default is time.AfterFunc.
type Scheduler func(d time.Duration, f func()) Timer

// Frame is one server push: {type, conversationId, ...payload}.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	Raw            json.RawMessage `json:"-"`
}

// FrameHandler processes inbound frames on the reader goroutine.
type FrameHandler func(ctx context.Context, f Frame)

// Options configures a Channel. Dial and After default to real implementations.
type Options struct {
	URL     string
	Auth    HeaderSource
	Dial    Dialer
	Policy  ReconnectPolicy
	Handler FrameHandler
	After   Scheduler
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Channel is one long-lived push connection with automatic reconnect.
// A clean close (code 1000) ends the connection without reconnecting; any
// other close schedules exactly one reconnect attempt after the policy delay.
type Channel struct {
	url     string
	auth    HeaderSource
	dial    Dialer
	policy  ReconnectPolicy
	handler FrameHandler
	after   Scheduler
	logger  *zap.Logger
	machine *Machine
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conn       Conn
	connCancel context.CancelFunc
	timer      Timer
	attempt    int
	signedOut  bool
}

func New(opts Options) *Channel {
	if opts.Dial == nil {
		opts.Dial = WebSocketDialer(nil)
	}
	if opts.Policy == nil {
		opts.Policy = Fixed(3 * time.Second)
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Handler == nil {
		opts.Handler = func(context.Context, Frame) {}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		url:     opts.URL,
		auth:    opts.Auth,
		dial:    opts.Dial,
		policy:  opts.Policy,
		handler: opts.Handler,
		after:   opts.After,
		logger:  opts.Logger.With(zap.String("channel", opts.URL)),
		machine: NewMachine(opts.URL, opts.Bus),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	return c.machine.Current()
}

// Connect opens the connection. It is a no-op while a connection is open,
// and concurrent calls share one attempt. forceNew closes any open
// connection cleanly and dials a fresh one.
func (c *Channel) Connect(ctx context.Context, forceNew bool) error {
	if forceNew {
		c.dropCurrent("reconnecting")
	}
	_, err, _ := c.group.Do("connect", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Channel) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.signedOut {
		c.mu.Unlock()
		return ErrSignedOut
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.setState(Connecting)

	header := http.Header{}
	if c.auth != nil {
		h, err := c.auth.AuthHeader(ctx)
		if err != nil {
			return c.fail(fmt.Errorf("auth header: %w", err))
		}
		if h != "" {
			header.Set("Authorization", h)
		}
	}

	conn, err := c.dial(ctx, c.url, header)
	if err != nil {
		return c.fail(fmt.Errorf("dial: %w", err))
	}

	c.mu.Lock()
	if c.signedOut {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "signed out")
		return ErrSignedOut
	}
	readCtx, cancel := context.WithCancel(c.ctx)
	c.conn = conn
	c.connCancel = cancel
	c.attempt = 0
	c.mu.Unlock()

	c.setState(Open)
	c.logger.Info("channel open")
	go c.readLoop(readCtx, conn)
	return nil
}

// fail records a failed attempt and schedules the next one.
func (c *Channel) fail(err error) error {
	c.logger.Warn("channel connect failed", zap.Error(err))
	c.setState(ClosedError)
	c.scheduleReconnect()
	return err
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.onClosed(conn, err)
			return
		}
		if typ != websocket.MessageText {
			c.logger.Debug("ignoring binary frame", zap.Int("bytes", len(data)))
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("unparseable frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		f.Raw = data
		c.handler(ctx, f)
	}
}

func (c *Channel) onClosed(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// closed on purpose by Close or a forced reconnect
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	c.mu.Unlock()

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.logger.Info("channel closed by server")
		c.setState(ClosedClean)
		return
	}
	c.logger.Warn("channel dropped", zap.Error(err))
	c.setState(ClosedError)
	c.scheduleReconnect()
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.signedOut || c.timer != nil {
		c.mu.Unlock()
		return
	}
	c.attempt++
	delay := c.policy.Delay(c.attempt)
	c.timer = c.after(delay, c.reconnect)
	attempt := c.attempt
	c.mu.Unlock()

	c.setState(Reconnecting)
	c.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (c *Channel) reconnect() {
	c.mu.Lock()
	c.timer = nil
	out := c.signedOut
	c.mu.Unlock()
	if out {
		return
	}
	if err := c.Connect(c.ctx, false); err != nil && !errors.Is(err, ErrSignedOut) {
		c.logger.Debug("reconnect attempt failed", zap.Error(err))
	}
}

// dropCurrent closes the open connection with code 1000 without scheduling a reconnect.
func (c *Channel) dropCurrent(reason string) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
		c.setState(ClosedClean)
	}
}

// Close shuts the channel for the rest of the session: the connection is
// closed with code 1000 and no reconnect will ever be scheduled.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.signedOut {
		c.mu.Unlock()
		return nil
	}
	c.signedOut = true
	c.mu.Unlock()

	c.dropCurrent("signed out")
	c.cancel()
	if s := c.State(); s != ClosedClean {
		c.setState(ClosedClean)
	}
	c.logger.Info("channel closed")
	return nil
}

func (c *Channel) setState(to State) {
	if c.machine.Current() == to {
		return
	}
	if err := c.machine.Transition(to); err != nil {
		c.logger.Warn("unexpected channel transition", zap.Error(err))
	}
}
