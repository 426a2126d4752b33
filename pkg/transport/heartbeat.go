package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"sync"
	"time"
)

// Heartbeat constants.
const (
	// DefaultHeartbeatInterval is the time between pings.
	DefaultHeartbeatInterval = 28 * time.Second

	// DefaultPayloadSize is the number of random bytes carried by a ping.
	DefaultPayloadSize = 8
)

// HeartbeatConfig configures heartbeat behavior.
type HeartbeatConfig struct {
	// Interval is the time between pings.
	Interval time.Duration

	// PayloadSize is the ping payload length (max 125, the control frame limit).
	PayloadSize int
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:    DefaultHeartbeatInterval,
		PayloadSize: DefaultPayloadSize,
	}
}

// Heartbeat sends periodic pings over one connection and checks that pongs
// echo the last ping payload.
type Heartbeat struct {
	config HeartbeatConfig

	sendPing   func(payload []byte) error
	onMismatch func(sent, got []byte)

	mu          sync.Mutex
	lastPayload []byte
	stats       HeartbeatStats

	stopOnce sync.Once
	stopCh   chan struct{}
}

// HeartbeatStats contains heartbeat statistics.
type HeartbeatStats struct {
	PingsSent     uint64
	PingFailures  uint64
	PongsReceived uint64
	Mismatches    uint64
	LastPingTime  time.Time
	LastPongTime  time.Time
}

// NewHeartbeat creates a heartbeat that sends pings through sendPing.
func NewHeartbeat(config HeartbeatConfig, sendPing func(payload []byte) error) *Heartbeat {
	if config.Interval <= 0 {
		config.Interval = DefaultHeartbeatInterval
	}
	if config.PayloadSize <= 0 || config.PayloadSize > 125 {
		config.PayloadSize = DefaultPayloadSize
	}
	return &Heartbeat{
		config:   config,
		sendPing: sendPing,
		stopCh:   make(chan struct{}),
	}
}

// OnMismatch sets the callback invoked when a pong payload differs from
// the last ping. It must be set before the heartbeat runs.
func (h *Heartbeat) OnMismatch(fn func(sent, got []byte)) {
	h.onMismatch = fn
}

// Run sends a ping every interval until ctx is done or Stop is called.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			_ = h.Ping()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Ping sends one ping with a fresh random payload.
func (h *Heartbeat) Ping() error {
	payload := make([]byte, h.config.PayloadSize)
	_, _ = rand.Read(payload)

	h.mu.Lock()
	h.lastPayload = payload
	h.stats.LastPingTime = time.Now()
	h.mu.Unlock()

	err := h.sendPing(payload)

	h.mu.Lock()
	if err != nil {
		h.stats.PingFailures++
	} else {
		h.stats.PingsSent++
	}
	h.mu.Unlock()
	return err
}

// PongReceived records a pong and reports whether its payload matches the
// last ping. A mismatch only invokes the mismatch callback.
func (h *Heartbeat) PongReceived(payload []byte) bool {
	h.mu.Lock()
	sent := h.lastPayload
	h.stats.PongsReceived++
	h.stats.LastPongTime = time.Now()
	matched := bytes.Equal(sent, payload)
	if !matched {
		h.stats.Mismatches++
	}
	cb := h.onMismatch
	h.mu.Unlock()

	if !matched && cb != nil {
		cb(sent, payload)
	}
	return matched
}

// Stats returns current heartbeat statistics.
func (h *Heartbeat) Stats() HeartbeatStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
