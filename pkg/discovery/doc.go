// Package discovery advertises and finds fhirsub notification endpoints
// over mDNS/DNS-SD.
//
// A server advertises one instance of the service type _fhirsub._tcp. The
// TXT records carry what a client needs beyond host and port:
//
//	path=/ws     websocket path
//	ver=1        protocol version
//	tls=1        endpoint requires wss:// (omitted otherwise)
//
// Browsing aggregates the per-interface answers of one instance into a
// single Service holding every address seen.
package discovery
