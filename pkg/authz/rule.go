package authz

import (
	"github.com/openclinic/fhirsub/pkg/resource"
)

// Rule decides whether an identity may read a resource. It returns the
// reason and true when access is allowed.
type Rule interface {
	ReasonAllowed(id Identity, r *resource.Resource) (string, bool)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(id Identity, r *resource.Resource) (string, bool)

// ReasonAllowed calls f.
func (f RuleFunc) ReasonAllowed(id Identity, r *resource.Resource) (string, bool) {
	return f(id, r)
}

// ScopeRule allows identities holding "<Type>.read" or "*.read".
type ScopeRule struct{}

// ReasonAllowed implements Rule.
func (ScopeRule) ReasonAllowed(id Identity, r *resource.Resource) (string, bool) {
	if id == nil || r == nil {
		return "", false
	}
	if c := ReadCapability(r.Kind); id.HasCapability(c) {
		return "scope " + string(c), true
	}
	if id.HasCapability(CapabilityReadAll) {
		return "scope " + string(CapabilityReadAll), true
	}
	return "", false
}

// CompartmentRule allows a subject to read itself and every resource that
// references it, so "Patient/1" sees Observations whose subject is
// Patient/1.
type CompartmentRule struct{}

// ReasonAllowed implements Rule.
func (CompartmentRule) ReasonAllowed(id Identity, r *resource.Resource) (string, bool) {
	if id == nil || r == nil {
		return "", false
	}
	subject, err := resource.ParseReference(id.Subject())
	if err != nil {
		return "", false
	}
	if r.Reference() == subject {
		return "compartment self", true
	}
	for path := range r.Kind.ReferencePaths() {
		for _, ref := range r.References(path) {
			if ref == subject {
				return "compartment " + path, true
			}
		}
	}
	return "", false
}

// anyOf allows when the first of its rules allows.
type anyOf []Rule

func (rs anyOf) ReasonAllowed(id Identity, r *resource.Resource) (string, bool) {
	for _, rule := range rs {
		if reason, ok := rule.ReasonAllowed(id, r); ok {
			return reason, true
		}
	}
	return "", false
}

// AnyOf combines rules; the first allowing rule gives the reason.
func AnyOf(rules ...Rule) Rule {
	if len(rules) == 1 {
		return rules[0]
	}
	return anyOf(rules)
}
