package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openclinic/fhirsub/pkg/resource"
)

type memEntry struct {
	res     *resource.Resource
	version int
}

// MemoryStore keeps resources in memory.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[resource.Reference]memEntry
	publisher Publisher

	// readErr, when set, fails every read. Used to simulate outages.
	readErr error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[resource.Reference]memEntry)}
}

// SetPublisher registers the receiver of change events.
func (s *MemoryStore) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

// SetReadError makes every subsequent read fail with err wrapped in
// ErrStorage. A nil err restores normal reads.
func (s *MemoryStore) SetReadError(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// Put creates or updates r and publishes the resulting event.
func (s *MemoryStore) Put(_ context.Context, r *resource.Resource) (resource.Event, error) {
	if r == nil || r.ID == "" {
		return resource.Event{}, ErrNoID
	}
	ref := r.Reference()

	s.mu.Lock()
	prev, exists := s.entries[ref]
	op := resource.OpCreate
	if exists {
		op = resource.OpUpdate
	}
	stored := stamp(r, prev.version+1, time.Now())
	s.entries[ref] = memEntry{res: stored, version: prev.version + 1}
	pub := s.publisher
	s.mu.Unlock()

	ev := resource.NewEvent(op, stored)
	if pub != nil {
		pub.Publish(ev)
	}
	return ev, nil
}

// Delete removes ref and publishes a delete event carrying the last version.
func (s *MemoryStore) Delete(_ context.Context, ref resource.Reference) (resource.Event, error) {
	s.mu.Lock()
	prev, exists := s.entries[ref]
	if !exists {
		s.mu.Unlock()
		return resource.Event{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	delete(s.entries, ref)
	pub := s.publisher
	s.mu.Unlock()

	ev := resource.NewEvent(resource.OpDelete, prev.res)
	if pub != nil {
		pub.Publish(ev)
	}
	return ev, nil
}

// ReadResource implements ResourceReader.
func (s *MemoryStore) ReadResource(_ context.Context, ref resource.Reference) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, s.readErr)
	}
	e, ok := s.entries[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return e.res, nil
}

// ReadActiveSubscriptions implements SubscriptionStore. Results are sorted by
// id.
func (s *MemoryStore) ReadActiveSubscriptions(_ context.Context) ([]*resource.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, s.readErr)
	}

	var subs []*resource.Subscription
	for ref, e := range s.entries {
		if ref.Kind != resource.KindSubscription || statusOf(e.res) != string(resource.StatusActive) {
			continue
		}
		sub, err := resource.SubscriptionFromResource(e.res)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStorage, ref, err)
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

// Len returns the number of stored resources.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
