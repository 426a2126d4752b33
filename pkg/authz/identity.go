package authz

import (
	"sort"
	"strings"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// Capability is a named permission carried by an Identity.
type Capability string

// Well-known capabilities.
const (
	// CapabilityListen allows opening a subscription socket.
	CapabilityListen Capability = "subscription.listen"

	// CapabilityReadAll allows reading every resource type.
	CapabilityReadAll Capability = "*.read"
)

// ReadCapability returns the capability to read resources of kind,
// for example "Observation.read".
func ReadCapability(kind resource.Kind) Capability {
	return Capability(kind.String() + ".read")
}

// Identity is the authenticated principal behind a connection.
type Identity interface {
	// Subject identifies the principal. For patients and practitioners it
	// is a relative reference such as "Patient/123".
	Subject() string

	// HasCapability reports whether the principal carries c.
	HasCapability(c Capability) bool
}

// Principal is a static Identity.
type Principal struct {
	subject      string
	capabilities map[Capability]struct{}
}

// NewPrincipal creates a principal with the given capabilities.
func NewPrincipal(subject string, caps ...Capability) *Principal {
	p := &Principal{
		subject:      subject,
		capabilities: make(map[Capability]struct{}, len(caps)),
	}
	for _, c := range caps {
		p.capabilities[c] = struct{}{}
	}
	return p
}

// Subject returns the principal's subject.
func (p *Principal) Subject() string {
	return p.subject
}

// HasCapability reports whether p carries c.
func (p *Principal) HasCapability(c Capability) bool {
	_, ok := p.capabilities[c]
	return ok
}

// Capabilities returns the sorted capability list.
func (p *Principal) Capabilities() []Capability {
	out := make([]Capability, 0, len(p.capabilities))
	for c := range p.capabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String returns "subject [cap cap ...]".
func (p *Principal) String() string {
	caps := p.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return p.subject + " [" + strings.Join(names, " ") + "]"
}
