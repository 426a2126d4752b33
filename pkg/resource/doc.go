// Package resource defines the clinical resource values that flow through
// the notification engine.
//
// Resource kinds form a closed set (Kind). Each kind knows which of its
// elements hold references to other resources, which is what chained
// subscription criteria traverse when a match needs data from a referenced
// resource.
//
// A Resource is a kind, a logical id, and a JSON-shaped element tree. It can
// be encoded as FHIR JSON or FHIR XML for payload channels.
//
// Subscriptions are themselves resources; SubscriptionFromResource decodes
// the criteria, status, and channel descriptor the engine needs.
package resource
