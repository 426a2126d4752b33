package criteria

import (
	"context"
	"errors"
	"fmt"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// ErrNoResolver is returned when a chained matcher is resolved without a
// Resolver.
var ErrNoResolver = errors.New("criteria needs a resolver")

// Resolver loads referenced resources for chained parameters. It returns
// (nil, nil) when the reference does not exist.
type Resolver interface {
	Resolve(ctx context.Context, ref resource.Reference) (*resource.Resource, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref resource.Reference) (*resource.Resource, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, ref resource.Reference) (*resource.Resource, error) {
	return f(ctx, ref)
}

// Includes holds referenced resources fetched for one evaluation.
type Includes map[resource.Reference]*resource.Resource

// chain is a reference traversal a matcher needs resolved.
type chain struct {
	paths   []string
	targets []resource.Kind
}

// Matcher decides whether resources of one kind satisfy a criteria string.
// It is immutable and safe for concurrent use.
type Matcher struct {
	kind     resource.Kind
	criteria string
	clauses  []predicate
	chains   []chain
}

// Kind returns the resource kind the matcher applies to.
func (m *Matcher) Kind() resource.Kind { return m.kind }

// Criteria returns the criteria string the matcher was built from.
func (m *Matcher) Criteria() string { return m.criteria }

// Chained reports whether evaluating the matcher needs referenced resources.
func (m *Matcher) Chained() bool { return len(m.chains) > 0 }

// Resolve fetches the referenced resources r's chains traverse. Matchers
// without chains return nil without touching resolver.
func (m *Matcher) Resolve(ctx context.Context, r *resource.Resource, resolver Resolver) (Includes, error) {
	if len(m.chains) == 0 || r == nil || r.Kind != m.kind {
		return nil, nil
	}
	if resolver == nil {
		return nil, ErrNoResolver
	}

	inc := make(Includes)
	for _, c := range m.chains {
		for _, p := range c.paths {
			for _, ref := range r.References(p) {
				if !containsKind(c.targets, ref.Kind) {
					continue
				}
				if _, done := inc[ref]; done {
					continue
				}
				target, err := resolver.Resolve(ctx, ref)
				if err != nil {
					return nil, fmt.Errorf("resolve %s: %w", ref, err)
				}
				inc[ref] = target
			}
		}
	}
	return inc, nil
}

// Matches reports whether r satisfies every clause. inc must come from
// Resolve for chained matchers; missing includes never match.
func (m *Matcher) Matches(r *resource.Resource, inc Includes) bool {
	if r == nil || r.Kind != m.kind {
		return false
	}
	for _, c := range m.clauses {
		if !c(r, inc) {
			return false
		}
	}
	return true
}

// Evaluate resolves and matches in one step.
func (m *Matcher) Evaluate(ctx context.Context, r *resource.Resource, resolver Resolver) (bool, error) {
	inc, err := m.Resolve(ctx, r, resolver)
	if err != nil {
		return false, err
	}
	return m.Matches(r, inc), nil
}
