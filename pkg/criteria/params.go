package criteria

import (
	"github.com/openclinic/fhirsub/pkg/resource"
)

// ParamType is the FHIR search parameter type.
type ParamType uint8

const (
	ParamToken ParamType = iota
	ParamString
	ParamReference
	ParamDate
)

// String returns the parameter type name.
func (t ParamType) String() string {
	switch t {
	case ParamToken:
		return "token"
	case ParamString:
		return "string"
	case ParamReference:
		return "reference"
	case ParamDate:
		return "date"
	default:
		return "unknown"
	}
}

// SearchParam describes one search parameter of a resource type.
type SearchParam struct {
	Name string
	Type ParamType

	// Paths are the element paths the parameter searches.
	Paths []string

	// Targets restricts the kinds a reference parameter accepts. When empty
	// the kind's reference table decides.
	Targets []resource.Kind
}

// Common parameters available on every resource type.
var commonParams = []SearchParam{
	{Name: "_id", Type: ParamToken, Paths: []string{"id"}},
	{Name: "_lastUpdated", Type: ParamDate, Paths: []string{"meta.lastUpdated"}},
}

var defaultParams = map[resource.Kind][]SearchParam{
	resource.KindPatient: {
		{Name: "active", Type: ParamToken, Paths: []string{"active"}},
		{Name: "name", Type: ParamString, Paths: []string{"name"}},
		{Name: "family", Type: ParamString, Paths: []string{"name.family"}},
		{Name: "given", Type: ParamString, Paths: []string{"name.given"}},
		{Name: "gender", Type: ParamToken, Paths: []string{"gender"}},
		{Name: "birthdate", Type: ParamDate, Paths: []string{"birthDate"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
		{Name: "telecom", Type: ParamToken, Paths: []string{"telecom"}},
		{Name: "address", Type: ParamString, Paths: []string{"address"}},
		{Name: "general-practitioner", Type: ParamReference, Paths: []string{"generalPractitioner"}},
		{Name: "organization", Type: ParamReference, Paths: []string{"managingOrganization"}},
		{Name: "link", Type: ParamReference, Paths: []string{"link.other"}},
	},
	resource.KindPractitioner: {
		{Name: "active", Type: ParamToken, Paths: []string{"active"}},
		{Name: "name", Type: ParamString, Paths: []string{"name"}},
		{Name: "family", Type: ParamString, Paths: []string{"name.family"}},
		{Name: "given", Type: ParamString, Paths: []string{"name.given"}},
		{Name: "gender", Type: ParamToken, Paths: []string{"gender"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
	},
	resource.KindOrganization: {
		{Name: "active", Type: ParamToken, Paths: []string{"active"}},
		{Name: "name", Type: ParamString, Paths: []string{"name", "alias"}},
		{Name: "type", Type: ParamToken, Paths: []string{"type"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
		{Name: "partof", Type: ParamReference, Paths: []string{"partOf"}},
	},
	resource.KindEncounter: {
		{Name: "status", Type: ParamToken, Paths: []string{"status"}},
		{Name: "class", Type: ParamToken, Paths: []string{"class"}},
		{Name: "type", Type: ParamToken, Paths: []string{"type"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
		{Name: "date", Type: ParamDate, Paths: []string{"period.start"}},
		{Name: "subject", Type: ParamReference, Paths: []string{"subject"}},
		{Name: "patient", Type: ParamReference, Paths: []string{"subject"}, Targets: []resource.Kind{resource.KindPatient}},
		{Name: "service-provider", Type: ParamReference, Paths: []string{"serviceProvider"}},
		{Name: "participant", Type: ParamReference, Paths: []string{"participant.individual"}},
		{Name: "part-of", Type: ParamReference, Paths: []string{"partOf"}},
	},
	resource.KindObservation: {
		{Name: "status", Type: ParamToken, Paths: []string{"status"}},
		{Name: "code", Type: ParamToken, Paths: []string{"code"}},
		{Name: "category", Type: ParamToken, Paths: []string{"category"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
		{Name: "date", Type: ParamDate, Paths: []string{"effectiveDateTime", "effectivePeriod.start"}},
		{Name: "subject", Type: ParamReference, Paths: []string{"subject"}},
		{Name: "patient", Type: ParamReference, Paths: []string{"subject"}, Targets: []resource.Kind{resource.KindPatient}},
		{Name: "encounter", Type: ParamReference, Paths: []string{"encounter"}},
		{Name: "performer", Type: ParamReference, Paths: []string{"performer"}},
		{Name: "has-member", Type: ParamReference, Paths: []string{"hasMember"}},
	},
	resource.KindTask: {
		{Name: "status", Type: ParamToken, Paths: []string{"status"}},
		{Name: "business-status", Type: ParamToken, Paths: []string{"businessStatus"}},
		{Name: "intent", Type: ParamToken, Paths: []string{"intent"}},
		{Name: "priority", Type: ParamToken, Paths: []string{"priority"}},
		{Name: "code", Type: ParamToken, Paths: []string{"code"}},
		{Name: "identifier", Type: ParamToken, Paths: []string{"identifier"}},
		{Name: "authored-on", Type: ParamDate, Paths: []string{"authoredOn"}},
		{Name: "subject", Type: ParamReference, Paths: []string{"for"}},
		{Name: "patient", Type: ParamReference, Paths: []string{"for"}, Targets: []resource.Kind{resource.KindPatient}},
		{Name: "owner", Type: ParamReference, Paths: []string{"owner"}},
		{Name: "requester", Type: ParamReference, Paths: []string{"requester"}},
		{Name: "encounter", Type: ParamReference, Paths: []string{"encounter"}},
		{Name: "focus", Type: ParamReference, Paths: []string{"focus"}},
	},
	resource.KindSubscription: {
		{Name: "status", Type: ParamToken, Paths: []string{"status"}},
		{Name: "criteria", Type: ParamString, Paths: []string{"criteria"}},
		{Name: "type", Type: ParamToken, Paths: []string{"channel.type"}},
		{Name: "payload", Type: ParamToken, Paths: []string{"channel.payload"}},
		{Name: "url", Type: ParamToken, Paths: []string{"channel.endpoint"}},
	},
}

// targets returns the kinds a reference parameter of kind may point at.
func (p SearchParam) targets(kind resource.Kind) []resource.Kind {
	if len(p.Targets) > 0 {
		return p.Targets
	}
	var out []resource.Kind
	seen := make(map[resource.Kind]bool)
	for _, path := range p.Paths {
		for _, k := range kind.ReferenceTargets(path) {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
