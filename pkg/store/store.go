package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// Store errors.
var (
	// ErrStorage wraps I/O failures of the underlying storage.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNoID is returned when writing a resource without an id.
	ErrNoID = errors.New("resource has no id")
)

// SubscriptionStore reads the subscriptions that participate in matching.
type SubscriptionStore interface {
	// ReadActiveSubscriptions returns every subscription with status active.
	// Failures wrap ErrStorage.
	ReadActiveSubscriptions(ctx context.Context) ([]*resource.Subscription, error)
}

// ResourceReader reads single resources.
type ResourceReader interface {
	// ReadResource returns the current version of ref, or ErrNotFound.
	ReadResource(ctx context.Context, ref resource.Reference) (*resource.Resource, error)
}

// Publisher receives change events after they are committed.
type Publisher interface {
	Publish(ev resource.Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev resource.Event)

// Publish calls f.
func (f PublisherFunc) Publish(ev resource.Event) { f(ev) }

// stamp returns a copy of r carrying meta.versionId and meta.lastUpdated.
func stamp(r *resource.Resource, version int, at time.Time) *resource.Resource {
	fields := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	meta := map[string]any{}
	if old, ok := fields["meta"].(map[string]any); ok {
		for k, v := range old {
			meta[k] = v
		}
	}
	meta["versionId"] = strconv.Itoa(version)
	meta["lastUpdated"] = at.UTC().Format(time.RFC3339Nano)
	fields["meta"] = meta
	return resource.New(r.Kind, r.ID, fields)
}

// statusOf returns the subscription status column value for r.
func statusOf(r *resource.Resource) string {
	if r.Kind != resource.KindSubscription {
		return ""
	}
	s, _ := r.Fields["status"].(string)
	return s
}
