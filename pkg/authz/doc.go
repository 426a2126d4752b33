// Package authz decides which bound sessions may see an event's resource.
//
// A connected client is represented by an Identity: an opaque subject plus a
// capability test. The transport only asks whether an Identity carries the
// capability needed to open a subscription socket; the dispatcher asks the
// rule registered for the event's resource type whether the Identity may
// read the resource.
//
// Rules return a reason when they allow access so deliveries can be logged
// with the rule that let them through. A resource type without any rule is
// denied for everyone.
package authz
