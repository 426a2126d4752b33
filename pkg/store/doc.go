// Package store holds resources and Subscription resources for the
// notification service.
//
// The dispatcher only consumes two read interfaces: SubscriptionStore for
// registry refreshes and ResourceReader (through Resolver) for chained
// criteria. MemoryStore and SQLiteStore implement both and also act as a
// minimal write path: every successful Put or Delete is reported to the
// registered Publisher after the change is committed.
package store
