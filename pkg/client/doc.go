// Package client is a notification listener for a fhirsub server.
//
// A Client keeps one websocket open to the server and binds it to a single
// subscription. When the connection drops it reconnects with exponential
// backoff (see package connection) and binds again before reporting itself
// connected. Frames arrive on the Notifications channel:
//
//	bound <id>   KindBound, the server accepted the bind
//	ping <id>    KindPing, a matching change on a payload-less channel
//	<resource>   KindPayload, the encoded resource
//
// Websocket pings are answered with pongs carrying the same bytes.
//
// A server close with "cannot accept" or "policy violated" is terminal:
// the client stops and Err reports the reason.
package client
