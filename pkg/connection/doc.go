// Package connection keeps a client connection alive.
//
// A Manager performs the first connect synchronously. After that, whoever
// owns the socket reports ConnectionLost and the Manager reconnects in the
// background with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds, repeated until successful
//  4. Reset to 1s after a successful reconnect
//
// Every delay gets up to 25% random jitter so clients that lost the same
// server do not reconnect in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// A connect only counts as successful when the ConnectFunc returns nil;
// for fhirsub clients that includes re-sending the bind.
package connection
