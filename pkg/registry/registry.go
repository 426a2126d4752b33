package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openclinic/fhirsub/pkg/criteria"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
)

// MatcherFactory compiles criteria strings.
type MatcherFactory interface {
	CreateMatcher(criteria string) (*criteria.Matcher, error)
}

// Config configures a Registry.
type Config struct {
	// Store supplies the active subscriptions.
	Store store.SubscriptionStore

	// Factory compiles criteria. Defaults to criteria.NewFactory().
	Factory MatcherFactory

	// Logger receives refresh diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Registry publishes generations of active subscriptions.
type Registry struct {
	store   store.SubscriptionStore
	factory MatcherFactory
	logger  *slog.Logger

	current atomic.Pointer[Generation]

	// buildMu serializes builds; readers never take it.
	buildMu sync.Mutex

	refreshes atomic.Uint64
	failures  atomic.Uint64
}

// New creates an empty registry. No generation exists until the first
// Refresh or EnsureBuilt.
func New(cfg Config) *Registry {
	if cfg.Factory == nil {
		cfg.Factory = criteria.NewFactory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:   cfg.Store,
		factory: cfg.Factory,
		logger:  cfg.Logger,
	}
}

// Refresh rebuilds the registry from the store and swaps the new generation
// in. On a store failure the previous generation stays in effect and the
// error is returned wrapped.
func (r *Registry) Refresh(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	return r.refreshLocked(ctx)
}

// EnsureBuilt refreshes once if no generation has been built yet.
func (r *Registry) EnsureBuilt(ctx context.Context) error {
	if r.current.Load() != nil {
		return nil
	}
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	if r.current.Load() != nil {
		return nil
	}
	return r.refreshLocked(ctx)
}

func (r *Registry) refreshLocked(ctx context.Context) error {
	subs, err := r.store.ReadActiveSubscriptions(ctx)
	if err != nil {
		r.failures.Add(1)
		r.logger.Warn("registry refresh failed, keeping previous generation",
			"error", err,
			"generation", r.seq())
		return fmt.Errorf("refresh registry: %w", err)
	}

	gen := r.build(subs)
	r.current.Store(gen)
	r.refreshes.Add(1)

	r.logger.Debug("registry refreshed",
		"generation", gen.seq,
		"subscriptions", gen.Len(),
		"dropped", gen.dropped)
	return nil
}

func (r *Registry) build(subs []*resource.Subscription) *Generation {
	gen := &Generation{
		seq:     r.seq() + 1,
		builtAt: time.Now(),
		byKind:  make(map[resource.Kind][]Entry),
		byID:    make(map[string]*resource.Subscription, len(subs)),
	}

	for _, sub := range subs {
		if sub == nil || !sub.Active() {
			continue
		}
		id := sub.IDPart()
		if _, dup := gen.byID[id]; dup {
			r.logger.Warn("duplicate subscription id, keeping first", "subscription_id", id)
			continue
		}

		m, err := r.factory.CreateMatcher(sub.Criteria)
		if err != nil {
			gen.dropped++
			msg := "subscription criteria invalid, not matching"
			if errors.Is(err, criteria.ErrUnsupportedCriteria) {
				msg = "subscription criteria unsupported, not matching"
			}
			r.logger.Warn(msg,
				"subscription_id", id,
				"criteria", sub.Criteria,
				"error", err)
			continue
		}

		gen.byID[id] = sub
		gen.byKind[m.Kind()] = append(gen.byKind[m.Kind()], Entry{Subscription: sub, Matcher: m})
	}
	return gen
}

func (r *Registry) seq() uint64 {
	if g := r.current.Load(); g != nil {
		return g.seq
	}
	return 0
}

// Current returns the current generation, or nil if none was built.
func (r *Registry) Current() *Generation {
	return r.current.Load()
}

// Built reports whether a generation exists.
func (r *Registry) Built() bool {
	return r.current.Load() != nil
}

// Candidates returns the current entries for kind.
func (r *Registry) Candidates(kind resource.Kind) []Entry {
	if g := r.current.Load(); g != nil {
		return g.Candidates(kind)
	}
	return nil
}

// Lookup finds an active subscription by id part in the current generation.
func (r *Registry) Lookup(idPart string) (*resource.Subscription, bool) {
	if g := r.current.Load(); g != nil {
		return g.Lookup(idPart)
	}
	return nil, false
}

// Stats reports refresh counters.
type Stats struct {
	Generation    uint64
	Subscriptions int
	Dropped       int
	Refreshes     uint64
	Failures      uint64
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	s := Stats{
		Refreshes: r.refreshes.Load(),
		Failures:  r.failures.Load(),
	}
	if g := r.current.Load(); g != nil {
		s.Generation = g.seq
		s.Subscriptions = g.Len()
		s.Dropped = g.dropped
	}
	return s
}
