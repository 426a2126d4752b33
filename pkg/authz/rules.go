package authz

import (
	"fmt"
	"sync"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// RuleSpec describes a configured expression rule.
type RuleSpec struct {
	Resource string
	Name     string
	Expr     string
}

// Rules is the authorization rule registry keyed by resource kind.
type Rules struct {
	mu    sync.RWMutex
	rules map[resource.Kind][]Rule
}

// NewRules creates an empty registry. Every kind is denied until a rule is
// added for it.
func NewRules() *Rules {
	return &Rules{rules: make(map[resource.Kind][]Rule)}
}

// DefaultRules registers ScopeRule and CompartmentRule for every kind.
func DefaultRules() *Rules {
	rs := NewRules()
	for _, k := range resource.Kinds() {
		rs.Add(k, ScopeRule{})
		rs.Add(k, CompartmentRule{})
	}
	return rs
}

// Add registers rule for kind.
func (rs *Rules) Add(kind resource.Kind, rule Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules[kind] = append(rs.rules[kind], rule)
}

// AddSpec compiles and registers a configured rule. Resource "*" applies
// the rule to every kind.
func (rs *Rules) AddSpec(spec RuleSpec) error {
	rule, err := NewExprRule(spec.Name, spec.Expr)
	if err != nil {
		return err
	}
	if spec.Resource == "*" {
		for _, k := range resource.Kinds() {
			rs.Add(k, rule)
		}
		return nil
	}
	kind, ok := resource.ParseKind(spec.Resource)
	if !ok {
		return fmt.Errorf("rule %s: unknown resource type %q", spec.Name, spec.Resource)
	}
	rs.Add(kind, rule)
	return nil
}

// For returns the rule for kind, or nil when none is registered.
func (rs *Rules) For(kind resource.Kind) Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	rules := rs.rules[kind]
	if len(rules) == 0 {
		return nil
	}
	return AnyOf(append([]Rule(nil), rules...)...)
}
