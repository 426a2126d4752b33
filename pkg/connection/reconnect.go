package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrManagerClosed  = errors.New("connection manager closed")
	ErrAlreadyStarted = errors.New("connection manager already started")
)

// DefaultDialTimeout bounds one connect attempt.
const DefaultDialTimeout = 30 * time.Second

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates the first connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes a connection. It returns nil only when the
// connection is fully usable.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Connect ConnectFunc
	Backoff BackoffConfig

	// DialTimeout bounds one Connect call. Default: 30s
	DialTimeout time.Duration

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(old, next State)

	Logger *slog.Logger
}

// Manager supervises one logical connection.
type Manager struct {
	config  ManagerConfig
	backoff *Backoff
	logger  *slog.Logger

	mu      sync.RWMutex
	state   State
	started bool

	// lostEarly records a loss reported while a connect was in flight.
	lostEarly bool

	lost   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a connection manager.
func NewManager(config ManagerConfig) *Manager {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		backoff: NewBackoff(config.Backoff),
		logger:  logger,
		state:   StateDisconnected,
		lost:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the reconnect attempts since the last success.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// Start connects once. On success the manager starts supervising and will
// reconnect after ConnectionLost. A failed first connect is returned to the
// caller and leaves the manager startable again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.state == StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case m.started:
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()
	m.transition(StateConnecting)

	err := m.connect(ctx)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		m.transition(StateDisconnected)
		return err
	}
	lostEarly := m.consumeLostEarly()
	m.transition(StateConnected)

	m.wg.Add(1)
	go m.supervise()
	if lostEarly {
		m.ConnectionLost()
	}
	return nil
}

// ConnectionLost reports that the current connection is gone. Reports
// while already reconnecting are coalesced.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
	case StateConnecting, StateReconnecting:
		m.lostEarly = true
		m.mu.Unlock()
		return
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.transition(StateReconnecting)

	select {
	case m.lost <- struct{}{}:
	default:
	}
}

// Close stops reconnecting and waits for the supervisor to exit.
func (m *Manager) Close() {
	if m.State() == StateClosed {
		return
	}
	m.transition(StateClosed)
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) supervise() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.lost:
			m.reconnect()
		}
	}
}

func (m *Manager) reconnect() {
	for {
		if err := m.backoff.Wait(m.ctx); err != nil {
			return
		}
		if m.State() != StateReconnecting {
			return
		}

		err := m.connect(m.ctx)
		if err == nil && m.consumeLostEarly() {
			err = errors.New("connection lost during connect")
		}
		if err == nil {
			m.logger.Info("reconnected", "attempts", m.backoff.Attempts())
			m.backoff.Reset()
			m.transition(StateConnected)
			return
		}
		m.logger.Debug("reconnect failed",
			"attempt", m.backoff.Attempts(),
			"next_delay", m.backoff.Current(),
			"error", err)
	}
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	m.lostEarly = false
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
	defer cancel()
	return m.config.Connect(ctx)
}

func (m *Manager) consumeLostEarly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lost := m.lostEarly
	m.lostEarly = false
	return lost
}

// transition sets the state and reports the change. Closed is terminal.
func (m *Manager) transition(next State) {
	m.mu.Lock()
	old := m.state
	if old == StateClosed || old == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	fn := m.config.OnStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(old, next)
	}
}
