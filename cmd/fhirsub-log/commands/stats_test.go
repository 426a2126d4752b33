package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/openclinic/fhirsub/pkg/log"
)

func TestStatsCountsByLayer(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryMessage},
		{Timestamp: ts, Layer: log.LayerBinder, Category: log.CategoryState},
		{Timestamp: ts, Layer: log.LayerDispatch, Category: log.CategoryDelivery},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{"TRANSPORT:", "BINDER:", "DISPATCH:", "Total Events: 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestStatsDeliveryDecisions(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	delivery := func(sub string, d log.Decision) log.Event {
		return log.Event{
			Timestamp:      ts,
			Layer:          log.LayerDispatch,
			Category:       log.CategoryDelivery,
			SubscriptionID: sub,
			Delivery:       &log.DeliveryEvent{Resource: "Patient/p1", Decision: d},
		}
	}
	events := []log.Event{
		delivery("sub1", log.DecisionDelivered),
		delivery("sub1", log.DecisionDenied),
		delivery("sub2", log.DecisionSendFailed),
		delivery("sub2", log.DecisionDelivered),
	}
	path := createTestLogFile(t, events)

	stats, err := Collect(path)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if stats.Decisions[log.DecisionDelivered] != 2 {
		t.Errorf("expected 2 delivered, got %d", stats.Decisions[log.DecisionDelivered])
	}
	if s := stats.Subscriptions["sub1"]; s == nil || s.Delivered != 1 || s.Denied != 1 {
		t.Errorf("unexpected sub1 stats: %+v", s)
	}
	if s := stats.Subscriptions["sub2"]; s == nil || s.Failed != 1 {
		t.Errorf("unexpected sub2 stats: %+v", s)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	if !strings.Contains(buf.String(), "sub1: delivered 1, denied 1, failed 0") {
		t.Errorf("expected per-subscription line, got:\n%s", buf.String())
	}
}

func TestStatsConnections(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	code := 1000
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-aaaa-bbbb", Subject: "Practitioner/7", Category: log.CategoryState},
		{Timestamp: ts.Add(time.Second), ConnectionID: "conn-aaaa-bbbb", SubscriptionID: "sub1", Category: log.CategoryMessage},
		{
			Timestamp:    ts.Add(2 * time.Second),
			ConnectionID: "conn-aaaa-bbbb",
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgClose, CloseCode: &code},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "conn-cccc-dddd",
			Category:     log.CategoryControl,
			ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPong, Mismatch: true},
		},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "boom"}},
	}
	path := createTestLogFile(t, events)

	stats, err := Collect(path)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(stats.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(stats.Connections))
	}
	conn := stats.Connections["conn-aaaa-bbbb"]
	if conn.Events != 3 || conn.Subject != "Practitioner/7" || conn.SubscriptionID != "sub1" || conn.CloseCode != 1000 {
		t.Errorf("unexpected connection stats: %+v", conn)
	}
	if conn.LastSeen.Sub(conn.FirstSeen) != 2*time.Second {
		t.Errorf("unexpected duration %s", conn.LastSeen.Sub(conn.FirstSeen))
	}
	if stats.PongMismatches != 1 {
		t.Errorf("expected 1 mismatch, got %d", stats.PongMismatches)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	output := buf.String()
	for _, want := range []string{"Connections: 2", "[conn-aaa]", "Subscription: sub1", "Closed: 1000", "Pong Mismatches: 1", "Errors: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("expected no time range for empty log")
	}
}
