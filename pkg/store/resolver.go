package store

import (
	"context"
	"errors"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// Resolver adapts a ResourceReader to criteria.Resolver. Missing resources
// resolve to nil so dangling references simply fail to match.
type Resolver struct {
	reader ResourceReader
}

// NewResolver creates a resolver over reader.
func NewResolver(reader ResourceReader) *Resolver {
	return &Resolver{reader: reader}
}

// Resolve returns the referenced resource, nil if it does not exist.
func (r *Resolver) Resolve(ctx context.Context, ref resource.Reference) (*resource.Resource, error) {
	res, err := r.reader.ReadResource(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
