package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/binder"
	"github.com/openclinic/fhirsub/pkg/criteria"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/registry"
	"github.com/openclinic/fhirsub/pkg/resource"
)

// Defaults.
const (
	DefaultQueueSize     = 10000
	DefaultShutdownGrace = 10 * time.Second
)

// OverflowPolicy decides what happens when the queue is full.
type OverflowPolicy uint8

const (
	// OverflowDrop rejects the newest event and counts it.
	OverflowDrop OverflowPolicy = iota
	// OverflowBlock makes the producer wait for space.
	OverflowBlock
)

// String returns the policy name used in configuration.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDrop:
		return "drop"
	case OverflowBlock:
		return "block"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses "drop" or "block".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop", "":
		return OverflowDrop, nil
	case "block":
		return OverflowBlock, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Registry is the part of the subscription registry the dispatcher uses.
type Registry interface {
	Refresh(ctx context.Context) error
	Candidates(kind resource.Kind) []registry.Entry
}

// Recipients looks up bound sessions.
type Recipients interface {
	Recipients(idPart string) []binder.Recipient
}

// RuleSet looks up authorization rules.
type RuleSet interface {
	For(kind resource.Kind) authz.Rule
}

// Config configures a Dispatcher.
type Config struct {
	Registry Registry
	Binder   Recipients
	Rules    RuleSet

	// Resolver loads referenced resources for chained criteria.
	Resolver criteria.Resolver

	// QueueSize bounds the number of queued events.
	QueueSize int

	// Overflow is the full-queue policy.
	Overflow OverflowPolicy

	// ShutdownGrace bounds how long Stop waits for the queue to drain.
	ShutdownGrace time.Duration

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives delivery decisions. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with default limits and no collaborators.
func DefaultConfig() Config {
	return Config{
		QueueSize:     DefaultQueueSize,
		Overflow:      OverflowDrop,
		ShutdownGrace: DefaultShutdownGrace,
	}
}
