package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// putter is the write side of the service used for seeding.
type putter interface {
	Put(ctx context.Context, r *resource.Resource) (resource.Event, error)
}

// loadSeed reads a YAML sequence of resources, each carrying resourceType
// and id like its JSON form.
func loadSeed(path string) ([]*resource.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}

	out := make([]*resource.Resource, 0, len(raw))
	for i, m := range raw {
		r, err := resource.FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// seed writes every resource of path through p.
func seed(ctx context.Context, p putter, path string) (int, error) {
	resources, err := loadSeed(path)
	if err != nil {
		return 0, err
	}
	for _, r := range resources {
		if _, err := p.Put(ctx, r); err != nil {
			return 0, fmt.Errorf("seed %s: %w", r.Reference(), err)
		}
	}
	return len(resources), nil
}
