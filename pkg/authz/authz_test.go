package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/resource"
)

func finalObservation() *resource.Resource {
	return resource.New(resource.KindObservation, "o1", map[string]any{
		"status":  "final",
		"subject": map[string]any{"reference": "Patient/p1"},
	})
}

func TestPrincipal(t *testing.T) {
	p := NewPrincipal("Practitioner/7", "b", "a")

	assert.Equal(t, "Practitioner/7", p.Subject())
	assert.True(t, p.HasCapability("a"))
	assert.False(t, p.HasCapability("c"))
	assert.Equal(t, []Capability{"a", "b"}, p.Capabilities())
	assert.Equal(t, "Practitioner/7 [a b]", p.String())
	assert.Equal(t, Capability("Observation.read"), ReadCapability(resource.KindObservation))
}

func TestScopeRule(t *testing.T) {
	obs := finalObservation()

	reason, ok := ScopeRule{}.ReasonAllowed(NewPrincipal("x", "Observation.read"), obs)
	assert.True(t, ok)
	assert.Equal(t, "scope Observation.read", reason)

	reason, ok = ScopeRule{}.ReasonAllowed(NewPrincipal("x", CapabilityReadAll), obs)
	assert.True(t, ok)
	assert.Equal(t, "scope *.read", reason)

	_, ok = ScopeRule{}.ReasonAllowed(NewPrincipal("x", "Patient.read"), obs)
	assert.False(t, ok)

	_, ok = ScopeRule{}.ReasonAllowed(nil, obs)
	assert.False(t, ok)
}

func TestCompartmentRule(t *testing.T) {
	obs := finalObservation()

	reason, ok := CompartmentRule{}.ReasonAllowed(NewPrincipal("Patient/p1"), obs)
	assert.True(t, ok)
	assert.Equal(t, "compartment subject", reason)

	_, ok = CompartmentRule{}.ReasonAllowed(NewPrincipal("Patient/p2"), obs)
	assert.False(t, ok)

	reason, ok = CompartmentRule{}.ReasonAllowed(NewPrincipal("Patient/p1"),
		resource.New(resource.KindPatient, "p1", nil))
	assert.True(t, ok)
	assert.Equal(t, "compartment self", reason)

	_, ok = CompartmentRule{}.ReasonAllowed(NewPrincipal("service-account"), obs)
	assert.False(t, ok)
}

func TestExprRule(t *testing.T) {
	rule, err := NewExprRule("final-only",
		`kind == "Observation" && resource.status == "final" && can("clinician")`)
	require.NoError(t, err)
	assert.Equal(t, "final-only", rule.Name())

	reason, ok := rule.ReasonAllowed(NewPrincipal("x", "clinician"), finalObservation())
	assert.True(t, ok)
	assert.Equal(t, "rule final-only", reason)

	_, ok = rule.ReasonAllowed(NewPrincipal("x"), finalObservation())
	assert.False(t, ok)

	prelim := finalObservation()
	prelim.Fields["status"] = "preliminary"
	_, ok = rule.ReasonAllowed(NewPrincipal("x", "clinician"), prelim)
	assert.False(t, ok)

	bySubject, err := NewExprRule("self", `subject == "Patient/" + id`)
	require.NoError(t, err)
	_, ok = bySubject.ReasonAllowed(NewPrincipal("Patient/p1"), resource.New(resource.KindPatient, "p1", nil))
	assert.True(t, ok)
}

func TestExprRuleCompileErrors(t *testing.T) {
	_, err := NewExprRule("num", `1 + 1`)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = NewExprRule("syntax", `can(`)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestRulesFor(t *testing.T) {
	rs := NewRules()
	assert.Nil(t, rs.For(resource.KindObservation))

	rs.Add(resource.KindObservation, ScopeRule{})
	require.NotNil(t, rs.For(resource.KindObservation))
	assert.Nil(t, rs.For(resource.KindPatient))

	require.NoError(t, rs.AddSpec(RuleSpec{Resource: "*", Name: "admin", Expr: `can("admin")`}))
	rule := rs.For(resource.KindPatient)
	require.NotNil(t, rule)
	reason, ok := rule.ReasonAllowed(NewPrincipal("x", "admin"), resource.New(resource.KindPatient, "p", nil))
	assert.True(t, ok)
	assert.Equal(t, "rule admin", reason)

	assert.Error(t, rs.AddSpec(RuleSpec{Resource: "Medication", Name: "m", Expr: "true"}))
}

func TestDefaultRulesAnyOf(t *testing.T) {
	rule := DefaultRules().For(resource.KindObservation)
	require.NotNil(t, rule)

	reason, ok := rule.ReasonAllowed(NewPrincipal("Patient/p1"), finalObservation())
	assert.True(t, ok)
	assert.Equal(t, "compartment subject", reason)

	reason, ok = rule.ReasonAllowed(NewPrincipal("Patient/p1", "Observation.read"), finalObservation())
	assert.True(t, ok)
	assert.Equal(t, "scope Observation.read", reason)

	_, ok = rule.ReasonAllowed(NewPrincipal("Patient/p2"), finalObservation())
	assert.False(t, ok)
}
