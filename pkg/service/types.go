package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openclinic/fhirsub/pkg/discovery"
	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is serving connections.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Store is the resource store a Service reads subscriptions from and writes
// resources to. MemoryStore and SQLiteStore implement it.
type Store interface {
	store.SubscriptionStore
	store.ResourceReader

	// SetPublisher registers the receiver of committed change events.
	SetPublisher(p store.Publisher)

	Put(ctx context.Context, r *resource.Resource) (resource.Event, error)
	Delete(ctx context.Context, ref resource.Reference) (resource.Event, error)
}

// Options supplies collaborators that are not part of the configuration.
type Options struct {
	// Store replaces the store selected by the database setting. The caller
	// keeps ownership.
	Store Store

	// Advertiser replaces the mDNS advertiser when discovery is enabled.
	Advertiser discovery.Advertiser

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events in addition to the configured
	// protocol log file.
	ProtocolLogger log.Logger
}

var (
	_ Store = (*store.MemoryStore)(nil)
	_ Store = (*store.SQLiteStore)(nil)
)
