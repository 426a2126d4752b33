package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Resource is one clinical resource instance: its kind, logical id, and
// element tree. Fields never contains "resourceType" or "id".
//
// A Resource handed to the dispatcher is treated as immutable.
type Resource struct {
	Kind   Kind
	ID     string
	Fields map[string]any
}

// New creates a resource. A nil fields map is replaced by an empty one.
func New(kind Kind, id string, fields map[string]any) *Resource {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Resource{Kind: kind, ID: id, Fields: fields}
}

// Reference returns the reference to this resource.
func (r *Resource) Reference() Reference {
	return Reference{Kind: r.Kind, ID: r.ID}
}

// Values returns every value found at the dotted element path. Arrays are
// flattened at each step, so "name.given" over two names with two given
// names each yields four values. "id" addresses the logical id.
func (r *Resource) Values(path string) []any {
	if path == "id" {
		if r.ID == "" {
			return nil
		}
		return []any{r.ID}
	}
	current := []any{map[string]any(r.Fields)}
	for _, step := range strings.Split(path, ".") {
		var next []any
		for _, v := range current {
			obj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			next = appendFlat(next, obj[step])
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func appendFlat(dst []any, v any) []any {
	switch t := v.(type) {
	case nil:
		return dst
	case []any:
		for _, e := range t {
			dst = appendFlat(dst, e)
		}
		return dst
	case []map[string]any:
		for _, e := range t {
			dst = append(dst, e)
		}
		return dst
	default:
		return append(dst, v)
	}
}

// References returns the references held at a reference element path.
// Elements may be Reference objects ({"reference": "Patient/1"}) or bare
// strings; unparsable entries are skipped.
func (r *Resource) References(path string) []Reference {
	var refs []Reference
	for _, v := range r.Values(path) {
		var raw string
		switch t := v.(type) {
		case string:
			raw = t
		case map[string]any:
			raw, _ = t["reference"].(string)
		}
		if raw == "" {
			continue
		}
		ref, err := ParseReference(raw)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// MarshalJSON encodes the resource as FHIR JSON.
func (r *Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["resourceType"] = r.Kind.String()
	if r.ID != "" {
		out["id"] = r.ID
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes FHIR JSON. The resourceType must be a known kind.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return r.fromMap(raw)
}

// FromMap builds a resource from a decoded JSON or YAML object.
func FromMap(raw map[string]any) (*Resource, error) {
	r := &Resource{}
	if err := r.fromMap(raw); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resource) fromMap(raw map[string]any) error {
	typeName, _ := raw["resourceType"].(string)
	if typeName == "" {
		return errors.New("resource: missing resourceType")
	}
	kind, ok := ParseKind(typeName)
	if !ok {
		return fmt.Errorf("resource: unsupported resourceType %q", typeName)
	}
	id, _ := raw["id"].(string)

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "resourceType" || k == "id" {
			continue
		}
		fields[k] = normalize(v)
	}
	r.Kind, r.ID, r.Fields = kind, id, fields
	return nil
}

// normalize converts YAML-decoded containers into the JSON shapes the rest
// of the package expects.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
