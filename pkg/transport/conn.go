package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/wire"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// Conn is one accepted websocket. It implements binder.Conn.
type Conn struct {
	id       string
	ws       *websocket.Conn
	identity authz.Identity
	remote   string

	writeTimeout time.Duration
	plog         log.Logger

	writeMu   sync.Mutex
	state     atomic.Uint32
	closeOnce sync.Once

	subscription atomic.Pointer[string]
	heartbeat    atomic.Pointer[Heartbeat]
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, plog log.Logger) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &Conn{
		id:           uuid.New().String(),
		ws:           ws,
		remote:       addrString(ws.RemoteAddr()),
		writeTimeout: writeTimeout,
		plog:         plog,
	}
	c.state.Store(uint32(StateConnecting))
	return c
}

// ID returns the connection id (UUID).
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the authenticated identity, or nil before authorization.
func (c *Conn) Identity() authz.Identity {
	return c.identity
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// HeartbeatStats returns the connection's heartbeat statistics.
func (c *Conn) HeartbeatStats() HeartbeatStats {
	hb := c.heartbeat.Load()
	if hb == nil {
		return HeartbeatStats{}
	}
	return hb.Stats()
}

// State returns the connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// SendText writes one text frame. Concurrent callers are serialized.
func (c *Conn) SendText(text string) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err := c.ws.WriteMessage(websocket.TextMessage, []byte(text))
	c.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrConnectionClosed
		}
		return err
	}
	c.logText(log.DirectionOut, text)
	return nil
}

// CloseWith sends a close frame carrying reason and closes the socket.
// Only the first call has an effect.
func (c *Conn) CloseWith(reason wire.CloseReason) error {
	var err error
	c.closeOnce.Do(func() {
		old := c.setState(StateClosed)
		code := reason.Code()
		msg := websocket.FormatCloseMessage(code, reason.String())
		err = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		if cerr := c.ws.Close(); err == nil {
			err = cerr
		}
		c.emit(log.Event{
			Direction: log.DirectionOut,
			Category:  log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{
				Type:        log.ControlMsgClose,
				CloseCode:   &code,
				CloseReason: reason.String(),
			},
		})
		c.logState(old, StateClosed, reason.String())
	})
	return err
}

// close releases the socket after the peer went away.
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		old := c.setState(StateClosed)
		_ = c.ws.Close()
		c.logState(old, StateClosed, reason)
	})
}

func (c *Conn) ping(payload []byte) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	if err := c.ws.WriteControl(websocket.PingMessage, payload, time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	c.emit(log.Event{
		Direction:  log.DirectionOut,
		Category:   log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgPing, Payload: payload},
	})
	return nil
}

func (c *Conn) setState(s State) State {
	return State(c.state.Swap(uint32(s)))
}

func (c *Conn) open(id authz.Identity) {
	c.identity = id
	old := c.setState(StateOpen)
	c.logState(old, StateOpen, "")
}

func (c *Conn) setSubscription(id string) {
	c.subscription.Store(&id)
}

func (c *Conn) subscriptionID() string {
	if p := c.subscription.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Conn) logText(dir log.Direction, text string) {
	if c.plog == nil {
		return
	}
	msg := &log.MessageEvent{Size: len(text)}
	if dir == log.DirectionIn {
		msg.Type = log.MessageTypeOther
		if _, err := wire.ParseBind(text); err == nil {
			msg.Type = log.MessageTypeBind
		}
	} else {
		switch kind, _ := wire.Classify(text); kind {
		case wire.FrameBound:
			msg.Type = log.MessageTypeBound
		case wire.FramePing:
			msg.Type = log.MessageTypePing
		default:
			msg.Type = log.MessageTypePayload
		}
	}
	msg.Text, msg.Truncated = log.Truncate(text)
	c.emit(log.Event{Direction: dir, Category: log.CategoryMessage, Message: msg})
}

func (c *Conn) logState(old, next State, reason string) {
	c.emit(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

func (c *Conn) emit(ev log.Event) {
	if c.plog == nil {
		return
	}
	ev.ConnectionID = c.id
	ev.Layer = log.LayerTransport
	ev.RemoteAddr = c.remote
	ev.SubscriptionID = c.subscriptionID()
	if c.identity != nil {
		ev.Subject = c.identity.Subject()
	}
	log.Emit(c.plog, ev)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
