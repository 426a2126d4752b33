package criteria

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/resource"
)

func observation() *resource.Resource {
	return resource.New(resource.KindObservation, "obs-1", map[string]any{
		"status": "final",
		"code": map[string]any{
			"coding": []any{
				map[string]any{"system": "http://loinc.org", "code": "8867-4"},
			},
			"text": "Heart rate",
		},
		"identifier":        []any{map[string]any{"system": "urn:lab", "value": "A-17"}},
		"subject":           map[string]any{"reference": "Patient/p1"},
		"effectiveDateTime": "2024-03-15T10:30:00Z",
	})
}

func patient(id string, active bool) *resource.Resource {
	return resource.New(resource.KindPatient, id, map[string]any{
		"active": active,
		"name": []any{
			map[string]any{"family": "Smith", "given": []any{"Anna"}},
		},
		"birthDate": "1980-06-01",
	})
}

type mapResolver map[resource.Reference]*resource.Resource

func (m mapResolver) Resolve(_ context.Context, ref resource.Reference) (*resource.Resource, error) {
	return m[ref], nil
}

func match(t *testing.T, criteria string, r *resource.Resource) bool {
	t.Helper()
	m, err := NewFactory().CreateMatcher(criteria)
	require.NoError(t, err, criteria)
	ok, err := m.Evaluate(context.Background(), r, mapResolver{
		{Kind: resource.KindPatient, ID: "p1"}: patient("p1", true),
	})
	require.NoError(t, err, criteria)
	return ok
}

func TestMatcherSimpleParameters(t *testing.T) {
	obs := observation()

	tests := []struct {
		criteria string
		want     bool
	}{
		{"Observation", true},
		{"Observation?", true},
		{"Observation?status=final", true},
		{"Observation?status=preliminary", false},
		{"Observation?status=preliminary,final", true},
		{"Observation?status:not=final", false},
		{"Observation?status:not=amended", true},
		{"Observation?code=8867-4", true},
		{"Observation?code=http://loinc.org|8867-4", true},
		{"Observation?code=http://snomed.info/sct|8867-4", false},
		{"Observation?code=http://loinc.org|", true},
		{"Observation?code=|8867-4", false},
		{"Observation?identifier=urn:lab|A-17", true},
		{"Observation?_id=obs-1", true},
		{"Observation?_id=obs-2", false},
		{"Observation?subject=Patient/p1", true},
		{"Observation?subject=p1", true},
		{"Observation?subject:Patient=p1", true},
		{"Observation?patient=p2", false},
		{"Observation?encounter:missing=true", true},
		{"Observation?subject:missing=true", false},
		{"https://example.org/fhir/Observation?status=final", true},
		{"Patient?active=true", false},
	}
	for _, tt := range tests {
		t.Run(tt.criteria, func(t *testing.T) {
			assert.Equal(t, tt.want, match(t, tt.criteria, obs))
		})
	}
}

func TestMatcherRepeatedParametersAreAnded(t *testing.T) {
	obs := observation()
	assert.True(t, match(t, "Observation?status=final&status=final,amended", obs))
	assert.False(t, match(t, "Observation?status=final&status=amended", obs))
	assert.False(t, match(t, "Observation?status=final&code=1234-5", obs))
}

func TestMatcherStrings(t *testing.T) {
	p := patient("p1", true)

	tests := []struct {
		criteria string
		want     bool
	}{
		{"Patient?name=smi", true},
		{"Patient?name=ANN", true},
		{"Patient?family=jones", false},
		{"Patient?family:exact=Smith", true},
		{"Patient?family:exact=smith", false},
		{"Patient?given:contains=nn", true},
		{"Patient?name=jones,smith", true},
	}
	for _, tt := range tests {
		t.Run(tt.criteria, func(t *testing.T) {
			assert.Equal(t, tt.want, match(t, tt.criteria, p))
		})
	}
}

func TestMatcherDates(t *testing.T) {
	p := patient("p1", true)
	obs := observation()

	tests := []struct {
		criteria string
		r        *resource.Resource
		want     bool
	}{
		{"Patient?birthdate=1980", p, true},
		{"Patient?birthdate=1980-06", p, true},
		{"Patient?birthdate=1980-06-02", p, false},
		{"Patient?birthdate=ne1980-06-02", p, true},
		{"Patient?birthdate=gt1979", p, true},
		{"Patient?birthdate=lt1980-06-01", p, false},
		{"Patient?birthdate=le1980-06-01", p, true},
		{"Patient?birthdate=ge1981", p, false},
		{"Observation?date=2024-03-15", obs, true},
		{"Observation?date=gt2024-03-15T10:00:00Z", obs, true},
		{"Observation?date=lt2024-03-15T10:00:00Z", obs, false},
	}
	for _, tt := range tests {
		t.Run(tt.criteria, func(t *testing.T) {
			assert.Equal(t, tt.want, match(t, tt.criteria, tt.r))
		})
	}
}

func TestMatcherChaining(t *testing.T) {
	obs := observation()

	assert.True(t, match(t, "Observation?subject.active=true", obs))
	assert.True(t, match(t, "Observation?subject:Patient.family=smith", obs))
	assert.False(t, match(t, "Observation?subject.family=jones", obs))

	m, err := NewFactory().CreateMatcher("Observation?subject.active=true")
	require.NoError(t, err)
	assert.True(t, m.Chained())

	// Dangling references never match.
	ok, err := m.Evaluate(context.Background(), obs, mapResolver{})
	require.NoError(t, err)
	assert.False(t, ok)

	// Inactive subject.
	ok, err = m.Evaluate(context.Background(), obs, mapResolver{
		{Kind: resource.KindPatient, ID: "p1"}: patient("p1", false),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatcherResolveErrors(t *testing.T) {
	m, err := NewFactory().CreateMatcher("Observation?subject.active=true")
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), observation(), nil)
	assert.ErrorIs(t, err, ErrNoResolver)

	boom := errors.New("boom")
	_, err = m.Resolve(context.Background(), observation(), ResolverFunc(
		func(context.Context, resource.Reference) (*resource.Resource, error) {
			return nil, boom
		}))
	assert.ErrorIs(t, err, boom)
}

func TestUnchainedMatcherSkipsResolver(t *testing.T) {
	m, err := NewFactory().CreateMatcher("Observation?status=final")
	require.NoError(t, err)

	calls := 0
	inc, err := m.Resolve(context.Background(), observation(), ResolverFunc(
		func(context.Context, resource.Reference) (*resource.Resource, error) {
			calls++
			return nil, nil
		}))
	require.NoError(t, err)
	assert.Nil(t, inc)
	assert.Zero(t, calls)
	assert.True(t, m.Matches(observation(), inc))
}

func TestMatcherKindMismatch(t *testing.T) {
	m, err := NewFactory().CreateMatcher("Patient")
	require.NoError(t, err)
	assert.Equal(t, resource.KindPatient, m.Kind())
	assert.Equal(t, "Patient", m.Criteria())
	assert.False(t, m.Matches(observation(), nil))
	assert.False(t, m.Matches(nil, nil))
}

func TestCreateMatcherErrors(t *testing.T) {
	tests := []struct {
		criteria string
		want     error
	}{
		{"", ErrInvalidCriteria},
		{"?status=final", ErrInvalidCriteria},
		{"Medication?status=active", ErrUnsupportedCriteria},
		{"Observation?unknown=1", ErrInvalidCriteria},
		{"Observation?status:exact=final", ErrInvalidCriteria},
		{"Observation?status=", ErrInvalidCriteria},
		{"Observation?status:missing=maybe", ErrInvalidCriteria},
		{"Observation?date=yesterday", ErrInvalidCriteria},
		{"Observation?subject:Organization=1", ErrInvalidCriteria},
		{"Observation?subject=Organization/1", ErrInvalidCriteria},
		{"Observation?status.active=true", ErrInvalidCriteria},
		{"Observation?subject.organization.name=x", ErrInvalidCriteria},
		{"Observation?subject.nonsense=x", ErrInvalidCriteria},
		{"Observation?status=%zz", ErrInvalidCriteria},
	}
	for _, tt := range tests {
		t.Run(tt.criteria, func(t *testing.T) {
			_, err := NewFactory().CreateMatcher(tt.criteria)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSplitValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitValues("a,b"))
	assert.Equal(t, []string{"a,b", "c"}, splitValues(`a\,b,c`))
	assert.Equal(t, []string{"a"}, splitValues("a,,"))
	assert.Empty(t, splitValues(""))
}

func TestSplitCriteria(t *testing.T) {
	typeName, query := SplitCriteria(" https://example.org/fhir/Task?status=ready ")
	assert.Equal(t, "Task", typeName)
	assert.Equal(t, "status=ready", query)

	typeName, query = SplitCriteria("Patient")
	assert.Equal(t, "Patient", typeName)
	assert.Empty(t, query)
}
