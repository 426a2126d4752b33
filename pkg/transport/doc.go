// Package transport serves the subscription notification websocket.
//
// Each accepted socket goes through:
//   - authentication (bearer token) and a capability check; a principal
//     without the required capability is closed with "policy violated"
//   - a read loop recognizing the single client message "bind <id>"
//   - a heartbeat: a ping with random payload every interval, whose pong
//     must echo the same bytes
//
// Everything else on the socket is server to client: "bound <id>" after a
// successful bind, then notification frames written by the dispatcher
// through Conn.SendText.
//
// # Heartbeat
//
// Heartbeats run on a HeartbeatScheduler, one task per connection,
// independent of event dispatch. A pong whose payload differs from the last
// ping is logged and counted; the connection stays open.
//
// # Connection States
//
//	CONNECTING ──(authorized)──► OPEN ──(close/error)──► CLOSED
//	     │                                                  ▲
//	     └──────────────(policy violated)───────────────────┘
package transport
