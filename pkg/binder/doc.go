// Package binder tracks which live connections are bound to which
// subscription.
//
// Routes map a subscription id part to an immutable recipient list. Binds
// and closes replace the list under a lock scoped to that subscription id,
// so unrelated subscriptions never contend and readers iterate a snapshot
// without locking. A connection is bound to at most one subscription;
// binding again moves it. Empty lists are removed.
package binder
