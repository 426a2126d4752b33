// Package registry holds the active subscriptions and their compiled
// matchers.
//
// The registry is a sequence of immutable generations. A refresh reads every
// active subscription from the store, compiles its criteria and publishes a
// new Generation with a single atomic pointer swap. Readers always see one
// complete generation; nothing is patched in place.
//
// Subscriptions whose criteria cannot be compiled are left out of the
// generation and logged. A failed store read keeps the previous generation.
package registry
