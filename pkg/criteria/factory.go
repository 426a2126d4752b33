package criteria

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// Criteria errors.
var (
	// ErrUnsupportedCriteria is returned when no builder exists for the
	// criteria's resource type.
	ErrUnsupportedCriteria = errors.New("unsupported criteria")

	// ErrInvalidCriteria is returned for malformed criteria, unknown
	// parameters or bad values.
	ErrInvalidCriteria = errors.New("invalid criteria")
)

// Factory creates matchers from criteria strings.
type Factory struct {
	builders Builders
}

// NewFactory creates a factory over the default parameter tables.
func NewFactory() *Factory {
	return NewFactoryWithBuilders(DefaultBuilders())
}

// NewFactoryWithBuilders creates a factory over custom builders.
func NewFactoryWithBuilders(builders Builders) *Factory {
	return &Factory{builders: builders}
}

// Builder returns the query builder for a resource type name.
func (f *Factory) Builder(typeName string) (*QueryBuilder, bool) {
	kind, ok := resource.ParseKind(typeName)
	if !ok {
		return nil, false
	}
	b, ok := f.builders[kind]
	return b, ok
}

// CreateMatcher compiles criteria. The resource type is the last segment of
// the path before '?', so "Observation?..." and
// "https://example.org/fhir/Observation?..." are equivalent.
func (f *Factory) CreateMatcher(criteria string) (*Matcher, error) {
	typeName, rawQuery := SplitCriteria(criteria)
	if typeName == "" {
		return nil, fmt.Errorf("%w: no resource type in %q", ErrInvalidCriteria, criteria)
	}
	b, ok := f.Builder(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: resource type %s", ErrUnsupportedCriteria, typeName)
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	return b.Build(criteria, query)
}

// SplitCriteria splits criteria into its resource type name and raw query.
func SplitCriteria(criteria string) (typeName, rawQuery string) {
	path, rawQuery, _ := strings.Cut(strings.TrimSpace(criteria), "?")
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path, rawQuery
}
