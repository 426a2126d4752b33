package interactive

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/config"
	"github.com/openclinic/fhirsub/pkg/discovery"
	"github.com/openclinic/fhirsub/pkg/discovery/mocks"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/service"
)

// syncBuffer is written by the notification printer and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func startServer(t *testing.T) *service.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Tokens = []config.TokenConfig{
		{Token: "nurse", Subject: "Practitioner/7", Capabilities: []string{"subscription.listen", "*.read"}},
	}

	svc, err := service.New(cfg, service.Options{})
	require.NoError(t, err)
	_, err = svc.Put(context.Background(), resource.New(resource.KindSubscription, "s1", map[string]any{
		"status":   "active",
		"criteria": "Patient?active=true",
		"channel":  map[string]any{"type": "websocket", "payload": "application/fhir+json"},
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		return svc.State() == service.StateRunning
	}, 3*time.Second, 5*time.Millisecond)
	return svc
}

func TestConsoleBasics(t *testing.T) {
	out := &syncBuffer{}
	c := newConsole(Config{}, out)
	ctx := context.Background()

	assert.False(t, c.handle(ctx, "   "))
	assert.False(t, c.handle(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	out.Reset()
	c.handle(ctx, "status")
	assert.Contains(t, out.String(), "Not connected")

	out.Reset()
	c.handle(ctx, "bind s1")
	assert.Contains(t, out.String(), "Not connected")

	out.Reset()
	c.handle(ctx, "discover")
	assert.Contains(t, out.String(), "Discovery is not available")

	out.Reset()
	c.handle(ctx, "connect 2")
	assert.Contains(t, out.String(), "no discovered server #2")

	assert.True(t, c.handle(ctx, "quit"))
}

func TestConsoleDiscoverConnectBind(t *testing.T) {
	svc := startServer(t)
	port := svc.Addr().(*net.TCPAddr).Port

	browser := mocks.NewMockBrowser(t)
	browser.EXPECT().Browse(mock.Anything).RunAndReturn(func(context.Context) (<-chan *discovery.Service, error) {
		ch := make(chan *discovery.Service, 1)
		ch <- &discovery.Service{
			InstanceName: "ward-3",
			Host:         "127.0.0.1",
			Port:         uint16(port),
			Path:         "/ws",
			Version:      discovery.ProtocolVersion,
		}
		close(ch)
		return ch, nil
	}).Once()

	out := &syncBuffer{}
	c := newConsole(Config{Token: "nurse", Browser: browser}, out)
	t.Cleanup(c.disconnect)
	ctx := context.Background()

	c.handle(ctx, "discover 1")
	assert.Contains(t, out.String(), "[1] ward-3")

	c.handle(ctx, "connect 1")
	assert.Contains(t, out.String(), "Connected to ws://127.0.0.1:")

	c.handle(ctx, "bind Subscription/s1")
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Bound to s1"))
	}, 3*time.Second, 5*time.Millisecond)

	_, err := svc.Put(ctx, resource.New(resource.KindPatient, "p1", map[string]any{"active": true}))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte(`"id":"p1"`))
	}, 3*time.Second, 5*time.Millisecond)

	out.Reset()
	c.handle(ctx, "status")
	status := out.String()
	assert.Contains(t, status, "State:         CONNECTED")
	assert.Contains(t, status, "Subscription:  s1")
	assert.Contains(t, status, "Notifications: 1")

	out.Reset()
	c.handle(ctx, "disconnect")
	c.handle(ctx, "status")
	assert.Contains(t, out.String(), "Not connected")
}

func TestConsoleConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "ws://" + ln.Addr().String() + "/ws"
	ln.Close()

	out := &syncBuffer{}
	c := newConsole(Config{}, out)
	c.handle(context.Background(), "connect "+url)
	assert.Contains(t, out.String(), "Connect failed")

	out.Reset()
	c.handle(context.Background(), "status")
	assert.Contains(t, out.String(), "Not connected")
}
