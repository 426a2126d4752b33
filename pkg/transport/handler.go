package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/binder"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/wire"
)

// DefaultMaxMessageSize is the inbound frame limit.
const DefaultMaxMessageSize = 64 * 1024

// Binder is the session binder as seen by the transport.
type Binder interface {
	Bind(ctx context.Context, id authz.Identity, conn binder.Conn, subscriptionID string) error
	Close(connID string)
}

// Config configures a Handler.
type Config struct {
	Binder        Binder
	Authenticator Authenticator

	// RequiredCapability must be held to keep a connection open.
	// Defaults to authz.CapabilityListen.
	RequiredCapability authz.Capability

	Heartbeat HeartbeatConfig

	// MaxMessageSize limits inbound frames. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// WriteTimeout bounds one frame write. Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration

	// CheckOrigin is passed to the upgrader. Nil uses gorilla's same-origin check.
	CheckOrigin func(r *http.Request) bool

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Handler upgrades requests to notification websockets.
type Handler struct {
	config    Config
	upgrader  websocket.Upgrader
	scheduler *HeartbeatScheduler
	logger    *slog.Logger

	mu       sync.Mutex
	conns    map[string]*Conn
	shutdown bool
	wg       sync.WaitGroup
}

// NewHandler creates a handler.
func NewHandler(config Config) *Handler {
	if config.RequiredCapability == "" {
		config.RequiredCapability = authz.CapabilityListen
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		scheduler: NewHeartbeatScheduler(logger),
		logger:    logger,
		conns:     make(map[string]*Conn),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	var identity authz.Identity
	var authErr error
	if h.config.Authenticator != nil {
		identity, authErr = h.config.Authenticator.Authenticate(r)
	} else {
		authErr = ErrUnauthenticated
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := newConn(ws, h.config.WriteTimeout, h.config.ProtocolLogger)
	logger := h.logger.With("conn_id", conn.ID())

	if authErr != nil || identity == nil || !identity.HasCapability(h.config.RequiredCapability) {
		subject := ""
		if identity != nil {
			subject = identity.Subject()
		}
		logger.Info("connection rejected", "subject", subject, "capability", h.config.RequiredCapability, "error", authErr)
		_ = conn.CloseWith(wire.CloseReasonPolicyViolated)
		return
	}

	conn.open(identity)
	hb := NewHeartbeat(h.config.Heartbeat, conn.ping)
	conn.heartbeat.Store(hb)
	if !h.track(conn) {
		_ = conn.CloseWith(wire.CloseReasonGoingAway)
		return
	}
	logger.Debug("connection open", "subject", identity.Subject(), "remote", conn.RemoteAddr())

	hb.OnMismatch(func(sent, got []byte) {
		logger.Warn("pong payload mismatch", "sent", len(sent), "received", len(got))
		conn.emit(log.Event{
			Direction:  log.DirectionIn,
			Category:   log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgPong, Payload: got, Mismatch: true},
		})
	})
	ws.SetPongHandler(func(appData string) error {
		payload := []byte(appData)
		if hb.PongReceived(payload) {
			conn.emit(log.Event{
				Direction:  log.DirectionIn,
				Category:   log.CategoryControl,
				ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgPong, Payload: payload},
			})
		}
		return nil
	})
	if err := h.scheduler.Schedule(conn.ID(), hb); err != nil {
		logger.Debug("heartbeat not scheduled", "error", err)
	}

	reason := h.readLoop(r.Context(), conn, logger)

	conn.close(reason)
	h.scheduler.Cancel(conn.ID())
	h.config.Binder.Close(conn.ID())
	h.untrack(conn.ID())
	logger.Debug("connection closed", "reason", reason)
}

// readLoop handles inbound frames until the socket fails. It returns the
// close reason.
func (h *Handler) readLoop(ctx context.Context, conn *Conn, logger *slog.Logger) string {
	conn.ws.SetReadLimit(h.config.MaxMessageSize)
	ctx = context.WithoutCancel(ctx)

	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Error()
			}
			if conn.State() == StateClosed {
				return "closed by server"
			}
			return err.Error()
		}
		if mt != websocket.TextMessage {
			continue
		}
		text := string(data)
		conn.logText(log.DirectionIn, text)

		id, err := wire.ParseBind(text)
		if err != nil {
			logger.Debug("ignoring inbound text", "size", len(text))
			continue
		}
		previous := conn.subscriptionID()
		conn.setSubscription(resource.IDPart(id))
		if err := h.config.Binder.Bind(ctx, conn.Identity(), conn, id); err != nil {
			logger.Info("bind failed", "subscription_id", id, "error", err)
			conn.setSubscription(previous)
		}
	}
}

func (h *Handler) track(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.conns[c.ID()] = c
	return true
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Conn returns the open connection with id.
func (h *Handler) Conn(id string) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	return c, ok
}

// Heartbeats returns the heartbeat scheduler.
func (h *Handler) Heartbeats() *HeartbeatScheduler {
	return h.scheduler
}

// Shutdown refuses new upgrades, closes every open connection with a
// normal close, stops the heartbeat scheduler, and waits for connection
// goroutines until ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseWith(wire.CloseReasonNormal)
	}

	grace := time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = time.Until(dl)
	}
	h.scheduler.Shutdown(grace)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
