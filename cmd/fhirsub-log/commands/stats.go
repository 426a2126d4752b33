package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/openclinic/fhirsub/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Decisions         map[log.Decision]int
	Connections       map[string]*ConnectionStats
	Subscriptions     map[string]*SubscriptionStats
	PongMismatches    int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen      time.Time
	LastSeen       time.Time
	Events         int
	Subject        string
	SubscriptionID string
	CloseCode      int
}

// SubscriptionStats counts delivery decisions for one subscription.
type SubscriptionStats struct {
	Delivered int
	Denied    int
	Failed    int
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Decisions:         make(map[log.Decision]int),
		Connections:       make(map[string]*ConnectionStats),
		Subscriptions:     make(map[string]*SubscriptionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if event.Subject != "" {
			conn.Subject = event.Subject
		}
		if event.SubscriptionID != "" {
			conn.SubscriptionID = event.SubscriptionID
		}
		if cm := event.ControlMsg; cm != nil && cm.Type == log.ControlMsgClose && cm.CloseCode != nil {
			conn.CloseCode = *cm.CloseCode
		}
	}

	if cm := event.ControlMsg; cm != nil && cm.Mismatch {
		s.PongMismatches++
	}

	if d := event.Delivery; d != nil {
		s.Decisions[d.Decision]++
		sub, ok := s.Subscriptions[event.SubscriptionID]
		if !ok {
			sub = &SubscriptionStats{}
			s.Subscriptions[event.SubscriptionID] = sub
		}
		switch d.Decision {
		case log.DecisionDelivered:
			sub.Delivered++
		case log.DecisionDenied, log.DecisionNoRule:
			sub.Denied++
		case log.DecisionSendFailed:
			sub.Failed++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== fhirsub Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerBinder, log.LayerDispatch} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for cat := log.CategoryMessage; cat <= log.CategoryDelivery; cat++ {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Decisions) > 0 {
		fmt.Fprintln(w, "Delivery Decisions:")
		for d := log.DecisionDelivered; d <= log.DecisionSendFailed; d++ {
			if count := stats.Decisions[d]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", d.String()+":", count)
			}
		}
		fmt.Fprintln(w)

		ids := make([]string, 0, len(stats.Subscriptions))
		for id := range stats.Subscriptions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(w, "Subscriptions: %d\n", len(ids))
		for _, id := range ids {
			s := stats.Subscriptions[id]
			fmt.Fprintf(w, "  %s: delivered %d, denied %d, failed %d\n", id, s.Delivered, s.Denied, s.Failed)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Subject != "" {
				fmt.Fprintf(w, "           Subject: %s\n", c.stats.Subject)
			}
			if c.stats.SubscriptionID != "" {
				fmt.Fprintf(w, "           Subscription: %s\n", c.stats.SubscriptionID)
			}
			if c.stats.CloseCode != 0 {
				fmt.Fprintf(w, "           Closed: %d\n", c.stats.CloseCode)
			}
		}
	}

	if stats.PongMismatches > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Pong Mismatches: %d\n", stats.PongMismatches)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
