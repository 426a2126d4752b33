package resource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidReference is returned for strings that are not Type/id references.
var ErrInvalidReference = errors.New("invalid reference")

// Reference points at one resource by kind and logical id.
type Reference struct {
	Kind Kind
	ID   string
}

// String returns the relative reference "Type/id".
func (r Reference) String() string {
	return r.Kind.String() + "/" + r.ID
}

// IsZero reports whether r is the zero reference.
func (r Reference) IsZero() bool {
	return r.Kind == KindUnknown && r.ID == ""
}

// ParseReference parses a relative or absolute reference. A trailing
// "/_history/<version>" is dropped.
//
//	Patient/123
//	https://example.org/fhir/Patient/123/_history/4
func ParseReference(s string) (Reference, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if n := len(parts); n >= 2 && parts[n-2] == "_history" {
		parts = parts[:n-2]
	}
	if len(parts) < 2 {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	typeName, id := parts[len(parts)-2], parts[len(parts)-1]
	kind, ok := ParseKind(typeName)
	if !ok || id == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return Reference{Kind: kind, ID: id}, nil
}

// IDPart returns the logical id from a plain id, a relative reference or a
// versioned reference. "Subscription/abc/_history/2" yields "abc".
func IDPart(id string) string {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	if n := len(parts); n >= 2 && parts[n-2] == "_history" {
		parts = parts[:n-2]
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
