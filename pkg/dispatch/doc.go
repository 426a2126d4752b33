// Package dispatch fans resource change events out to bound subscribers.
//
// Events enter a bounded queue drained by exactly one worker goroutine, so
// they are processed in arrival order and the write path never waits for
// matching or delivery. For each event the worker:
//
//  1. refreshes the registry on the first event and on every Subscription
//     change,
//  2. evaluates the matchers registered for the resource type, resolving
//     chained references first,
//  3. filters each matching subscription's bound sessions through the
//     resource type's authorization rule,
//  4. renders the payload once per subscription (JSON, XML or a
//     "ping <id>" notice) and sends it to every allowed session.
//
// Failures never reach the producer: storage errors keep the previous
// registry generation, and a failed send affects only that recipient.
//
// When the queue is full the Overflow policy either rejects the newest event
// or blocks the producer. Stop stops intake, waits up to ShutdownGrace for
// the queue to drain, then abandons what is left.
package dispatch
