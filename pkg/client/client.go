package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclinic/fhirsub/pkg/connection"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/wire"
)

// Client errors.
var (
	ErrClosed   = errors.New("client closed")
	ErrRejected = errors.New("server rejected connection")
	ErrEmptyID  = errors.New("empty subscription id")
)

// Defaults.
const (
	DefaultBindTimeout  = 10 * time.Second
	DefaultBufferSize   = 64
	DefaultWriteTimeout = 10 * time.Second
)

// Kind classifies a notification.
type Kind uint8

const (
	KindBound Kind = iota
	KindPing
	KindPayload
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBound:
		return "bound"
	case KindPing:
		return "ping"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Notification is one frame received from the server.
type Notification struct {
	// SubscriptionID is the subscription the connection was bound to when
	// the frame arrived.
	SubscriptionID string
	Kind           Kind

	// Body is the encoded resource for payload notifications.
	Body     string
	Received time.Time
}

// Config configures a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/ws.
	URL string

	// Token is sent as a bearer token.
	Token string

	// SubscriptionID is bound on every connect. It may be set later with Bind.
	SubscriptionID string

	TLS     *tls.Config
	Backoff connection.BackoffConfig

	// BindTimeout bounds the wait for "bound" after a bind. Default: 10s
	BindTimeout time.Duration

	WriteTimeout time.Duration

	// BufferSize is the Notifications channel capacity. Default: 64
	BufferSize int

	OnStateChange func(old, next connection.State)
	Logger        *slog.Logger
}

// Client is a reconnecting notification listener.
type Client struct {
	config  Config
	logger  *slog.Logger
	manager *connection.Manager

	notifications chan Notification
	done          chan struct{}
	wg            sync.WaitGroup

	mu           sync.Mutex
	ws           *websocket.Conn
	subscription string
	closed       bool
	err          error
}

// New creates a client. Call Start to connect.
func New(config Config) *Client {
	if config.BindTimeout <= 0 {
		config.BindTimeout = DefaultBindTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		config:        config,
		logger:        logger.With("url", config.URL),
		notifications: make(chan Notification, config.BufferSize),
		done:          make(chan struct{}),
		subscription:  resource.IDPart(config.SubscriptionID),
	}
	c.manager = connection.NewManager(connection.ManagerConfig{
		Connect:       c.connect,
		Backoff:       config.Backoff,
		OnStateChange: config.OnStateChange,
		Logger:        c.logger,
	})
	return c
}

// Start connects and binds. The first failure is returned; later losses are
// handled by reconnecting.
func (c *Client) Start(ctx context.Context) error {
	return c.manager.Start(ctx)
}

// Notifications returns the frame stream. It is closed by Close.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Subscription returns the subscription id part the client binds to.
func (c *Client) Subscription() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

// Err returns the reason the client stopped on its own, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Bind moves the connection to another subscription. The acknowledgement
// arrives as a KindBound notification. While disconnected the id is only
// remembered and bound on the next connect.
func (c *Client) Bind(subscriptionID string) error {
	idPart := resource.IDPart(subscriptionID)
	if idPart == "" {
		return ErrEmptyID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.subscription = idPart
	if c.ws == nil {
		return nil
	}
	return c.writeText(c.ws, wire.Bind(idPart))
}

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.manager.Close()

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.Close()
	}

	c.wg.Wait()
	close(c.notifications)
	return nil
}

// connect is the connection.ConnectFunc: dial, bind, then read in the
// background.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.BindTimeout,
		TLSClientConfig:  c.config.TLS,
	}
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	ws, resp, err := dialer.DialContext(ctx, c.config.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	idPart := c.Subscription()
	if idPart != "" {
		if err := c.handshake(ctx, ws, idPart); err != nil {
			ws.Close()
			if errors.Is(err, ErrRejected) {
				go c.stop(err)
			}
			return err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.ws = ws
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(ws)
	c.logger.Info("connected", "subscription_id", idPart)
	return nil
}

// handshake sends the bind and waits for its acknowledgement.
func (c *Client) handshake(ctx context.Context, ws *websocket.Conn, idPart string) error {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	if err := c.writeText(ws, wire.Bind(idPart)); err != nil {
		return fmt.Errorf("send bind: %w", err)
	}
	if err := ws.SetReadDeadline(time.Now().Add(c.config.BindTimeout)); err != nil {
		return err
	}

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if reason, ok := rejection(err); ok {
				return fmt.Errorf("%w: %s", ErrRejected, reason)
			}
			return fmt.Errorf("wait for bound: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		kind, id := wire.Classify(string(data))
		if kind == wire.FrameBound && id == idPart {
			c.deliver(Notification{SubscriptionID: idPart, Kind: KindBound, Received: time.Now()})
			return ws.SetReadDeadline(time.Time{})
		}
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer c.wg.Done()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			c.connectionLost(ws, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !c.deliver(c.notification(string(data))) {
			return
		}
	}
}

func (c *Client) notification(frame string) Notification {
	n := Notification{SubscriptionID: c.Subscription(), Received: time.Now()}
	switch kind, id := wire.Classify(frame); kind {
	case wire.FrameBound:
		n.Kind = KindBound
		n.SubscriptionID = id
	case wire.FramePing:
		n.Kind = KindPing
		n.SubscriptionID = id
	default:
		n.Kind = KindPayload
		n.Body = frame
	}
	return n
}

// deliver blocks until the notification is taken or the client closes.
func (c *Client) deliver(n Notification) bool {
	select {
	case c.notifications <- n:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) connectionLost(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.mu.Unlock()
	ws.Close()

	if reason, ok := rejection(err); ok {
		c.logger.Warn("server rejected connection", "reason", reason.String())
		go c.stop(fmt.Errorf("%w: %s", ErrRejected, reason))
		return
	}
	c.logger.Info("connection lost", "error", err)
	c.manager.ConnectionLost()
}

func (c *Client) stop(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

// writeText writes one frame. Callers serialize writes on ws.
func (c *Client) writeText(ws *websocket.Conn, text string) error {
	if err := ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// rejection reports whether err is a server close that reconnecting
// cannot fix.
func rejection(err error) (wire.CloseReason, bool) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return 0, false
	}
	switch reason := wire.ReasonFromCode(ce.Code); reason {
	case wire.CloseReasonCannotAccept, wire.CloseReasonPolicyViolated:
		return reason, true
	default:
		return 0, false
	}
}
