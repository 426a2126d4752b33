package resource

// Kind identifies a resource type.
type Kind uint8

const (
	// KindUnknown is the zero value and never matches a registered type.
	KindUnknown Kind = iota
	KindPatient
	KindPractitioner
	KindOrganization
	KindEncounter
	KindObservation
	KindTask
	KindSubscription
)

// kindInfo describes one resource kind: its type name, the elements
// holding references (each with the kinds it may point at) and the
// top-level element order of the FHIR R4 schema.
type kindInfo struct {
	name     string
	refs     map[string][]Kind
	elements []string
}

// domainElements lead every resource, in schema order.
var domainElements = []string{
	"id", "meta", "implicitRules", "language", "text", "contained", "extension", "modifierExtension",
}

var kindTable = map[Kind]kindInfo{
	KindPatient: {
		name: "Patient",
		refs: map[string][]Kind{
			"generalPractitioner":  {KindPractitioner, KindOrganization},
			"managingOrganization": {KindOrganization},
			"link.other":           {KindPatient},
		},
		elements: []string{
			"identifier", "active", "name", "telecom", "gender", "birthDate", "deceasedBoolean", "deceasedDateTime",
			"address", "maritalStatus", "multipleBirthBoolean", "multipleBirthInteger", "photo", "contact",
			"communication", "generalPractitioner", "managingOrganization", "link",
		},
	},
	KindPractitioner: {
		name: "Practitioner",
		elements: []string{
			"identifier", "active", "name", "telecom", "address", "gender", "birthDate", "photo",
			"qualification", "communication",
		},
	},
	KindOrganization: {
		name: "Organization",
		refs: map[string][]Kind{
			"partOf": {KindOrganization},
		},
		elements: []string{
			"identifier", "active", "type", "name", "alias", "telecom", "address", "partOf", "contact", "endpoint",
		},
	},
	KindEncounter: {
		name: "Encounter",
		refs: map[string][]Kind{
			"subject":                {KindPatient},
			"serviceProvider":        {KindOrganization},
			"participant.individual": {KindPractitioner},
			"partOf":                 {KindEncounter},
		},
		elements: []string{
			"identifier", "status", "statusHistory", "class", "classHistory", "type", "serviceType", "priority",
			"subject", "episodeOfCare", "basedOn", "participant", "appointment", "period", "length", "reasonCode",
			"reasonReference", "diagnosis", "account", "hospitalization", "location", "serviceProvider", "partOf",
		},
	},
	KindObservation: {
		name: "Observation",
		refs: map[string][]Kind{
			"subject":   {KindPatient},
			"encounter": {KindEncounter},
			"performer": {KindPractitioner, KindOrganization, KindPatient},
			"hasMember": {KindObservation},
		},
		elements: []string{
			"identifier", "basedOn", "partOf", "status", "category", "code", "subject", "focus", "encounter",
			"effectiveDateTime", "effectivePeriod", "effectiveTiming", "effectiveInstant", "issued", "performer",
			"valueQuantity", "valueCodeableConcept", "valueString", "valueBoolean", "valueInteger", "valueRange",
			"valueRatio", "valueSampledData", "valueTime", "valueDateTime", "valuePeriod", "dataAbsentReason",
			"interpretation", "note", "bodySite", "method", "specimen", "device", "referenceRange", "hasMember",
			"derivedFrom", "component",
		},
	},
	KindTask: {
		name: "Task",
		refs: map[string][]Kind{
			"for":       {KindPatient},
			"encounter": {KindEncounter},
			"owner":     {KindPractitioner, KindOrganization},
			"requester": {KindPractitioner, KindOrganization},
			"focus":     {KindPatient, KindPractitioner, KindOrganization, KindEncounter, KindObservation, KindTask},
		},
		elements: []string{
			"identifier", "instantiatesCanonical", "instantiatesUri", "basedOn", "groupIdentifier", "partOf",
			"status", "statusReason", "businessStatus", "intent", "priority", "code", "description", "focus", "for",
			"encounter", "executionPeriod", "authoredOn", "lastModified", "requester", "performerType", "owner",
			"location", "reasonCode", "reasonReference", "insurance", "note", "relevantHistory", "restriction",
			"input", "output",
		},
	},
	KindSubscription: {
		name: "Subscription",
		elements: []string{
			"status", "contact", "end", "reason", "criteria", "error", "channel",
		},
	},
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindTable))
	for k, info := range kindTable {
		m[info.name] = k
	}
	return m
}()

// ParseKind resolves a resource type name such as "Patient".
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindPatient,
		KindPractitioner,
		KindOrganization,
		KindEncounter,
		KindObservation,
		KindTask,
		KindSubscription,
	}
}

// String returns the resource type name.
func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return "Unknown"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// ElementOrder returns the top-level element names of the kind in schema
// order, starting with the elements every resource shares. The returned
// slice must not be modified.
func (k Kind) ElementOrder() []string {
	return elementOrder[k]
}

var elementOrder = func() map[Kind][]string {
	m := make(map[Kind][]string, len(kindTable))
	for k, info := range kindTable {
		m[k] = append(append([]string(nil), domainElements...), info.elements...)
	}
	return m
}()

// ReferencePaths returns the reference-valued element paths of the kind.
// The returned map must not be modified.
func (k Kind) ReferencePaths() map[string][]Kind {
	return kindTable[k].refs
}

// ReferenceTargets returns the kinds the element at path may reference, or
// nil if path is not a reference element of k.
func (k Kind) ReferenceTargets(path string) []Kind {
	return kindTable[k].refs[path]
}
