package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatDefaults(t *testing.T) {
	config := DefaultHeartbeatConfig()
	assert.Equal(t, 28*time.Second, config.Interval)
	assert.Equal(t, DefaultPayloadSize, config.PayloadSize)

	hb := NewHeartbeat(HeartbeatConfig{PayloadSize: 500}, func([]byte) error { return nil })
	assert.Equal(t, DefaultHeartbeatInterval, hb.config.Interval)
	assert.Equal(t, DefaultPayloadSize, hb.config.PayloadSize)
}

func TestHeartbeatPingPayloads(t *testing.T) {
	var sent [][]byte
	hb := NewHeartbeat(HeartbeatConfig{Interval: time.Hour, PayloadSize: 16}, func(p []byte) error {
		sent = append(sent, p)
		return nil
	})

	require.NoError(t, hb.Ping())
	require.NoError(t, hb.Ping())

	require.Len(t, sent, 2)
	assert.Len(t, sent[0], 16)
	assert.NotEqual(t, sent[0], sent[1])

	stats := hb.Stats()
	assert.Equal(t, uint64(2), stats.PingsSent)
	assert.False(t, stats.LastPingTime.IsZero())
}

func TestHeartbeatPongVerification(t *testing.T) {
	var last []byte
	hb := NewHeartbeat(HeartbeatConfig{Interval: time.Hour}, func(p []byte) error {
		last = p
		return nil
	})
	var mismatched [][]byte
	hb.OnMismatch(func(sent, got []byte) {
		mismatched = append(mismatched, got)
	})

	require.NoError(t, hb.Ping())
	assert.True(t, hb.PongReceived(last))
	assert.False(t, hb.PongReceived([]byte("nope")))

	stats := hb.Stats()
	assert.Equal(t, uint64(2), stats.PongsReceived)
	assert.Equal(t, uint64(1), stats.Mismatches)
	assert.Equal(t, [][]byte{[]byte("nope")}, mismatched)
}

func TestHeartbeatPingFailureCounted(t *testing.T) {
	hb := NewHeartbeat(HeartbeatConfig{}, func([]byte) error { return ErrConnectionClosed })

	assert.ErrorIs(t, hb.Ping(), ErrConnectionClosed)
	stats := hb.Stats()
	assert.Equal(t, uint64(0), stats.PingsSent)
	assert.Equal(t, uint64(1), stats.PingFailures)
}

func TestHeartbeatRunStops(t *testing.T) {
	var pings atomic.Int32
	hb := NewHeartbeat(HeartbeatConfig{Interval: 5 * time.Millisecond}, func([]byte) error {
		pings.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		hb.Run(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return pings.Load() >= 3 }, time.Second, time.Millisecond)
	hb.Stop()
	hb.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewHeartbeatScheduler(nil)
	var pings atomic.Int32
	hb := NewHeartbeat(HeartbeatConfig{Interval: 5 * time.Millisecond}, func([]byte) error {
		pings.Add(1)
		return nil
	})

	require.NoError(t, s.Schedule("c1", hb))
	assert.Equal(t, 1, s.Len())
	assert.Eventually(t, func() bool { return pings.Load() > 0 }, time.Second, time.Millisecond)

	s.Cancel("c1")
	s.Cancel("c1")
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Shutdown(time.Second))
}

func TestSchedulerShutdown(t *testing.T) {
	s := NewHeartbeatScheduler(nil)
	for _, key := range []string{"a", "b", "c"} {
		hb := NewHeartbeat(HeartbeatConfig{Interval: time.Millisecond}, func([]byte) error { return nil })
		require.NoError(t, s.Schedule(key, hb))
	}

	assert.True(t, s.Shutdown(time.Second))
	assert.Equal(t, 0, s.Len())

	err := s.Schedule("d", NewHeartbeat(HeartbeatConfig{}, func([]byte) error { return nil }))
	assert.True(t, errors.Is(err, ErrSchedulerClosed))
	assert.True(t, s.Shutdown(time.Second))
}

func TestSchedulerShutdownForced(t *testing.T) {
	s := NewHeartbeatScheduler(nil)

	release := make(chan struct{})
	var entered sync.Once
	inPing := make(chan struct{})
	hb := NewHeartbeat(HeartbeatConfig{Interval: time.Millisecond}, func([]byte) error {
		entered.Do(func() { close(inPing) })
		<-release
		return nil
	})
	require.NoError(t, s.Schedule("stuck", hb))
	<-inPing

	assert.False(t, s.Shutdown(20*time.Millisecond))
	close(release)
}
