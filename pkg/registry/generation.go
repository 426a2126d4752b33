package registry

import (
	"time"

	"github.com/openclinic/fhirsub/pkg/criteria"
	"github.com/openclinic/fhirsub/pkg/resource"
)

// Entry pairs an active subscription with its compiled matcher.
type Entry struct {
	Subscription *resource.Subscription
	Matcher      *criteria.Matcher
}

// Generation is one immutable snapshot of the registry.
type Generation struct {
	seq     uint64
	builtAt time.Time
	byKind  map[resource.Kind][]Entry
	byID    map[string]*resource.Subscription
	dropped int
}

// Seq returns the generation number, starting at 1.
func (g *Generation) Seq() uint64 { return g.seq }

// BuiltAt returns when the generation was built.
func (g *Generation) BuiltAt() time.Time { return g.builtAt }

// Len returns the number of subscriptions in the generation.
func (g *Generation) Len() int { return len(g.byID) }

// Dropped returns how many active subscriptions were left out because their
// criteria could not be compiled.
func (g *Generation) Dropped() int { return g.dropped }

// Candidates returns the entries for subscriptions on kind. The slice is
// shared and must not be modified.
func (g *Generation) Candidates(kind resource.Kind) []Entry {
	return g.byKind[kind]
}

// Lookup returns the subscription with the given id part.
func (g *Generation) Lookup(idPart string) (*resource.Subscription, bool) {
	sub, ok := g.byID[idPart]
	return sub, ok
}

// Subscriptions returns every subscription in the generation keyed by id
// part. The map is shared and must not be modified.
func (g *Generation) Subscriptions() map[string]*resource.Subscription {
	return g.byID
}
