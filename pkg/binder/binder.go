package binder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/wire"
)

// ErrUnknownSubscription is returned when a bind targets a subscription that
// is not active.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Conn is the send side of a client connection.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string

	// SendText sends one text frame.
	SendText(msg string) error

	// CloseWith closes the connection with a protocol close reason.
	CloseWith(reason wire.CloseReason) error
}

// Recipient is one bound session.
type Recipient struct {
	Identity authz.Identity
	ConnID   string
	Conn     Conn
}

// SubscriptionLookup resolves subscription ids against the registry.
type SubscriptionLookup interface {
	// EnsureBuilt builds the registry if it was never built.
	EnsureBuilt(ctx context.Context) error

	// Lookup returns the active subscription with the id part.
	Lookup(idPart string) (*resource.Subscription, bool)
}

// Binder maps subscriptions to bound connections.
type Binder struct {
	lookup SubscriptionLookup
	logger *slog.Logger

	// routes holds subscription id part -> []Recipient. Stored slices are
	// never modified.
	routes sync.Map
	locks  keyedMutex

	sessionsMu sync.Mutex
	sessions   map[string]string // conn id -> subscription id part
}

// New creates a binder resolving subscriptions through lookup.
func New(lookup SubscriptionLookup, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Binder{
		lookup:   lookup,
		logger:   logger,
		sessions: make(map[string]string),
	}
}

// Bind binds conn to the subscription and acknowledges with "bound <id>".
// Unknown or inactive subscriptions close conn with CloseReasonCannotAccept
// and return ErrUnknownSubscription. A connection already bound elsewhere is
// moved. Bind and Close for the same connection must not run concurrently.
func (b *Binder) Bind(ctx context.Context, id authz.Identity, conn Conn, subscriptionID string) error {
	if err := b.lookup.EnsureBuilt(ctx); err != nil {
		b.logger.Warn("registry unavailable during bind", "conn_id", conn.ID(), "error", err)
	}

	idPart := resource.IDPart(subscriptionID)
	if _, ok := b.lookup.Lookup(idPart); !ok {
		b.logger.Info("bind to unknown subscription, closing",
			"conn_id", conn.ID(),
			"subscription_id", idPart)
		if err := conn.CloseWith(wire.CloseReasonCannotAccept); err != nil {
			b.logger.Debug("close after rejected bind failed", "conn_id", conn.ID(), "error", err)
		}
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, idPart)
	}

	b.sessionsMu.Lock()
	previous, wasBound := b.sessions[conn.ID()]
	b.sessions[conn.ID()] = idPart
	b.sessionsMu.Unlock()

	if wasBound {
		b.remove(previous, conn.ID())
	}
	b.add(idPart, Recipient{Identity: id, ConnID: conn.ID(), Conn: conn})

	b.logger.Debug("connection bound",
		"conn_id", conn.ID(),
		"subscription_id", idPart,
		"subject", subjectOf(id))

	if err := conn.SendText(wire.Bound(idPart)); err != nil {
		return fmt.Errorf("send bound: %w", err)
	}
	return nil
}

// Close removes the connection from whichever subscription it is bound to.
// It is a no-op for unbound connections.
func (b *Binder) Close(connID string) {
	b.sessionsMu.Lock()
	idPart, ok := b.sessions[connID]
	delete(b.sessions, connID)
	b.sessionsMu.Unlock()

	if !ok {
		return
	}
	b.remove(idPart, connID)
	b.logger.Debug("connection unbound", "conn_id", connID, "subscription_id", idPart)
}

// Recipients returns a snapshot of the sessions bound to the subscription.
// The slice must not be modified.
func (b *Binder) Recipients(idPart string) []Recipient {
	v, ok := b.routes.Load(idPart)
	if !ok {
		return nil
	}
	return v.([]Recipient)
}

// BoundTo returns the subscription a connection is bound to.
func (b *Binder) BoundTo(connID string) (string, bool) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	id, ok := b.sessions[connID]
	return id, ok
}

// Stats counts bound sessions and routes.
type Stats struct {
	Sessions int
	Routes   int
}

// Stats returns the current counts.
func (b *Binder) Stats() Stats {
	var s Stats
	b.sessionsMu.Lock()
	s.Sessions = len(b.sessions)
	b.sessionsMu.Unlock()
	b.routes.Range(func(_, _ any) bool {
		s.Routes++
		return true
	})
	return s
}

func (b *Binder) add(idPart string, r Recipient) {
	b.locks.lock(idPart)
	defer b.locks.unlock(idPart)

	old := b.Recipients(idPart)
	next := make([]Recipient, len(old), len(old)+1)
	copy(next, old)
	next = append(next, r)
	b.routes.Store(idPart, next)
}

func (b *Binder) remove(idPart, connID string) {
	b.locks.lock(idPart)
	defer b.locks.unlock(idPart)

	old := b.Recipients(idPart)
	next := make([]Recipient, 0, len(old))
	for _, r := range old {
		if r.ConnID != connID {
			next = append(next, r)
		}
	}
	if len(next) == 0 {
		b.routes.Delete(idPart)
		return
	}
	b.routes.Store(idPart, next)
}

func subjectOf(id authz.Identity) string {
	if id == nil {
		return ""
	}
	return id.Subject()
}
