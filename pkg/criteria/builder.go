package criteria

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// Builders maps resource kinds to their query builders.
type Builders map[resource.Kind]*QueryBuilder

// QueryBuilder turns a query string into a Matcher for one resource kind.
type QueryBuilder struct {
	kind   resource.Kind
	params map[string]SearchParam

	// peers resolves chain targets.
	peers Builders
}

// NewBuilders creates a builder per kind from parameter tables. The common
// parameters (_id, _lastUpdated) are added to every kind.
func NewBuilders(tables map[resource.Kind][]SearchParam) Builders {
	all := make(Builders, len(tables))
	for kind, params := range tables {
		b := &QueryBuilder{
			kind:   kind,
			params: make(map[string]SearchParam, len(params)+len(commonParams)),
			peers:  all,
		}
		for _, p := range commonParams {
			b.params[p.Name] = p
		}
		for _, p := range params {
			b.params[p.Name] = p
		}
		all[kind] = b
	}
	return all
}

// DefaultBuilders returns builders for every supported kind.
func DefaultBuilders() Builders {
	return NewBuilders(defaultParams)
}

// Kind returns the kind the builder compiles queries for.
func (b *QueryBuilder) Kind() resource.Kind { return b.kind }

// Param looks up a search parameter by name.
func (b *QueryBuilder) Param(name string) (SearchParam, bool) {
	p, ok := b.params[name]
	return p, ok
}

// Build compiles query into a Matcher. criteria is recorded on the matcher
// for diagnostics.
func (b *QueryBuilder) Build(criteria string, query url.Values) (*Matcher, error) {
	m := &Matcher{kind: b.kind, criteria: criteria}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, raw := range query[key] {
			head, tail, chained := strings.Cut(key, ".")
			if chained {
				pred, c, err := b.chainClause(head, tail, raw)
				if err != nil {
					return nil, err
				}
				m.clauses = append(m.clauses, pred)
				m.chains = append(m.chains, c)
				continue
			}
			pred, err := b.clause(key, raw)
			if err != nil {
				return nil, err
			}
			m.clauses = append(m.clauses, pred)
		}
	}
	return m, nil
}

// clause compiles one "name[:modifier]=values" pair.
func (b *QueryBuilder) clause(key, raw string) (predicate, error) {
	name, modifier, _ := strings.Cut(key, ":")
	p, ok := b.params[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown parameter %s on %s", ErrInvalidCriteria, name, b.kind)
	}

	if modifier == "missing" {
		switch raw {
		case "true":
			return missingPredicate(p.Paths, true), nil
		case "false":
			return missingPredicate(p.Paths, false), nil
		default:
			return nil, fmt.Errorf("%w: %s:missing needs true or false", ErrInvalidCriteria, name)
		}
	}

	values := splitValues(raw)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty value for %s", ErrInvalidCriteria, key)
	}

	alts := make([]predicate, 0, len(values))
	switch p.Type {
	case ParamToken:
		if modifier != "" && modifier != "not" {
			return nil, unsupportedModifier(key)
		}
		for _, v := range values {
			alts = append(alts, tokenPredicate(p.Paths, v))
		}
		if modifier == "not" {
			return not(anyOf(alts)), nil
		}

	case ParamString:
		mode := stringPrefix
		switch modifier {
		case "":
		case "exact":
			mode = stringExact
		case "contains":
			mode = stringContains
		default:
			return nil, unsupportedModifier(key)
		}
		for _, v := range values {
			alts = append(alts, stringPredicate(p.Paths, v, mode))
		}

	case ParamReference:
		allowed := p.targets(b.kind)
		if len(allowed) == 0 {
			allowed = resource.Kinds()
		}
		if modifier != "" {
			k, ok := resource.ParseKind(modifier)
			if !ok || !containsKind(allowed, k) {
				return nil, unsupportedModifier(key)
			}
			allowed = []resource.Kind{k}
		}
		for _, v := range values {
			pred, err := referencePredicate(p.Paths, v, allowed)
			if err != nil {
				return nil, err
			}
			alts = append(alts, pred)
		}

	case ParamDate:
		if modifier != "" {
			return nil, unsupportedModifier(key)
		}
		for _, v := range values {
			pred, err := datePredicate(p.Paths, v)
			if err != nil {
				return nil, err
			}
			alts = append(alts, pred)
		}
	}
	return anyOf(alts), nil
}

// chainClause compiles "ref[:Type].tail=values". tail is compiled against
// every target kind that knows it.
func (b *QueryBuilder) chainClause(head, tail, raw string) (predicate, chain, error) {
	name, modifier, _ := strings.Cut(head, ":")
	p, ok := b.params[name]
	if !ok || p.Type != ParamReference {
		return nil, chain{}, fmt.Errorf("%w: %s is not a reference parameter on %s", ErrInvalidCriteria, name, b.kind)
	}
	if strings.Contains(tail, ".") {
		return nil, chain{}, fmt.Errorf("%w: chain %s.%s is deeper than one level", ErrInvalidCriteria, head, tail)
	}

	targets := p.targets(b.kind)
	if modifier != "" {
		k, ok := resource.ParseKind(modifier)
		if !ok || !containsKind(targets, k) {
			return nil, chain{}, unsupportedModifier(head)
		}
		targets = []resource.Kind{k}
	}

	tailName, _, _ := strings.Cut(tail, ":")
	inner := make(map[resource.Kind]predicate)
	var resolved []resource.Kind
	for _, k := range targets {
		peer, ok := b.peers[k]
		if !ok {
			continue
		}
		if _, ok := peer.params[tailName]; !ok {
			continue
		}
		pred, err := peer.clause(tail, raw)
		if err != nil {
			return nil, chain{}, err
		}
		inner[k] = pred
		resolved = append(resolved, k)
	}
	if len(inner) == 0 {
		return nil, chain{}, fmt.Errorf("%w: no target of %s supports %s", ErrInvalidCriteria, head, tail)
	}
	return chainPredicate(p.Paths, inner), chain{paths: p.Paths, targets: resolved}, nil
}

func unsupportedModifier(key string) error {
	return fmt.Errorf("%w: unsupported modifier in %s", ErrInvalidCriteria, key)
}
