package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/client"
	"github.com/openclinic/fhirsub/pkg/config"
	"github.com/openclinic/fhirsub/pkg/discovery"
	"github.com/openclinic/fhirsub/pkg/discovery/mocks"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Dispatcher.ShutdownGrace = 2 * time.Second
	cfg.Tokens = []config.TokenConfig{
		{Token: "nurse", Subject: "Practitioner/7", Capabilities: []string{"subscription.listen", "*.read"}},
		{Token: "visitor", Subject: "Practitioner/8", Capabilities: []string{"subscription.listen"}},
	}
	return cfg
}

func activeSubscription(id, criteria string) *resource.Resource {
	return resource.New(resource.KindSubscription, id, map[string]any{
		"status":   "active",
		"criteria": criteria,
		"channel": map[string]any{
			"type":    "websocket",
			"payload": "application/fhir+json",
		},
	})
}

func startService(t *testing.T, cfg *config.Config, opts Options) *Service {
	t.Helper()
	svc, err := New(cfg, opts)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	served := make(chan error, 1)
	go func() { served <- svc.Serve() }()
	t.Cleanup(func() {
		if svc.State() == StateRunning {
			assert.NoError(t, svc.Stop())
		}
		assert.NoError(t, <-served)
	})
	return svc
}

func wsURL(svc *Service) string {
	return "ws://" + svc.Addr().String() + "/ws"
}

func listen(t *testing.T, svc *Service, token, subscription string) *client.Client {
	t.Helper()
	c := client.New(client.Config{URL: wsURL(svc), Token: token, SubscriptionID: subscription})
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Start(context.Background()))
	n := next(t, c)
	require.Equal(t, client.KindBound, n.Kind)
	return c
}

func next(t *testing.T, c *client.Client) client.Notification {
	t.Helper()
	select {
	case n := <-c.Notifications():
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return client.Notification{}
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = ""
	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = config.Default()
	cfg.Authorization.Rules = []config.RuleConfig{{Resource: "Patient", Name: "broken", Expr: "subject =="}}
	_, err = New(cfg, Options{})
	assert.ErrorContains(t, err, "authorization")
}

func TestServiceDeliversMatchingChange(t *testing.T) {
	svc := startService(t, testConfig(), Options{})
	ctx := context.Background()

	_, err := svc.Put(ctx, activeSubscription("s1", "Patient?active=true"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return svc.Registry().Stats().Subscriptions == 1
	}, 3*time.Second, 5*time.Millisecond)

	nurse := listen(t, svc, "nurse", "Subscription/s1")

	_, err = svc.Put(ctx, resource.New(resource.KindPatient, "p0", map[string]any{"active": false}))
	require.NoError(t, err)
	_, err = svc.Put(ctx, resource.New(resource.KindPatient, "p1", map[string]any{"active": true}))
	require.NoError(t, err)

	n := next(t, nurse)
	assert.Equal(t, client.KindPayload, n.Kind)
	assert.Equal(t, "s1", n.SubscriptionID)
	assert.Contains(t, n.Body, `"id":"p1"`)
	assert.Contains(t, n.Body, `"resourceType":"Patient"`)
}

func TestServiceAuthorizationFiltersRecipients(t *testing.T) {
	svc := startService(t, testConfig(), Options{})
	ctx := context.Background()

	_, err := svc.Put(ctx, activeSubscription("s1", "Patient?active=true"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return svc.Registry().Stats().Subscriptions == 1
	}, 3*time.Second, 5*time.Millisecond)

	nurse := listen(t, svc, "nurse", "s1")
	visitor := listen(t, svc, "visitor", "s1")

	// The visitor holds no read scope and is not Patient/p1.
	_, err = svc.Put(ctx, resource.New(resource.KindPatient, "p1", map[string]any{"active": true}))
	require.NoError(t, err)
	assert.Equal(t, client.KindPayload, next(t, nurse).Kind)

	require.Eventually(t, func() bool {
		return svc.Dispatcher().Stats().Denied >= 1
	}, 3*time.Second, 5*time.Millisecond)
	select {
	case n := <-visitor.Notifications():
		t.Fatalf("unexpected notification for visitor: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServicePublish(t *testing.T) {
	svc := startService(t, testConfig(), Options{})

	_, err := svc.Put(context.Background(), activeSubscription("s1", "Observation?status=final"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return svc.Registry().Stats().Subscriptions == 1
	}, 3*time.Second, 5*time.Millisecond)

	nurse := listen(t, svc, "nurse", "s1")

	obs := resource.New(resource.KindObservation, "o1", map[string]any{"status": "final"})
	assert.True(t, svc.Publish(resource.NewEvent(resource.OpCreate, obs)))

	n := next(t, nurse)
	assert.Equal(t, client.KindPayload, n.Kind)
	assert.Contains(t, n.Body, `"id":"o1"`)
}

func TestServiceHealth(t *testing.T) {
	svc, err := New(testConfig(), Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, svc.Start(context.Background()))
	go svc.Serve()

	resp, err := http.Get("http://" + svc.Addr().String() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "RUNNING", h.State)
	assert.True(t, h.GenerationBuilt)
	assert.Zero(t, h.Connections)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.State())
	assert.ErrorIs(t, svc.Stop(), ErrNotStarted)
}

func TestServiceAdvertises(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Enabled = true
	cfg.Discovery.Instance = "ward-3"

	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.MatchedBy(func(info *discovery.ServiceInfo) bool {
		return info.Instance == "ward-3" &&
			info.Path == "/ws" &&
			info.Version == discovery.ProtocolVersion &&
			info.Port != 0 &&
			!info.TLS
	})).Return(nil).Once()
	adv.EXPECT().Stop().Return(nil).Once()

	svc, err := New(cfg, Options{Advertiser: adv})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, svc.Stop())
}

func TestServiceStopClosesClients(t *testing.T) {
	cfg := testConfig()
	svc, err := New(cfg, Options{})
	require.NoError(t, err)
	_, err = svc.Put(context.Background(), activeSubscription("s1", "Patient?active=true"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, func() bool {
		return svc.State() == StateRunning
	}, 3*time.Second, 5*time.Millisecond)

	c := listen(t, svc, "nurse", "s1")
	require.Eventually(t, func() bool {
		return svc.Transport().Connections() == 1
	}, 3*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, StateStopped, svc.State())
	assert.Zero(t, svc.Transport().Connections())
	c.Close()
}

func TestServiceSQLiteAndProtocolLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Database = filepath.Join(dir, "fhirsub.db")
	cfg.ProtocolLog = filepath.Join(dir, "protocol.flog")

	svc := startService(t, cfg, Options{})
	_, ok := svc.Store().(*store.SQLiteStore)
	require.True(t, ok)

	_, err := svc.Put(context.Background(), activeSubscription("s1", "Patient?active=true"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return svc.Registry().Stats().Subscriptions == 1
	}, 3*time.Second, 5*time.Millisecond)

	nurse := listen(t, svc, "nurse", "s1")
	_, err = svc.Put(context.Background(), resource.New(resource.KindPatient, "p1", map[string]any{"active": true}))
	require.NoError(t, err)
	assert.Equal(t, client.KindPayload, next(t, nurse).Kind)
	nurse.Close()

	require.NoError(t, svc.Stop())

	events, err := log.ReadAll(cfg.ProtocolLog, log.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestServiceStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "UNKNOWN", ServiceState(99).String())
}
