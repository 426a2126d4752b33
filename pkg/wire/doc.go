// Package wire defines the text frame protocol spoken on a subscription
// notification connection.
//
// One connection carries interest in exactly one subscription. The only
// message a client may send is a bind request; everything else flows from
// server to client.
//
// # Frames
//
//	client → server   bind <subscriptionIdPart>
//	server → client   bound <subscriptionIdPart>
//	server → client   <encoded resource>          (JSON or XML payload channel)
//	server → client   ping <subscriptionIdPart>   (channel without payload)
//
// Liveness is checked separately with websocket ping/pong control frames
// carrying random bytes.
//
// # Close Reasons
//
// The server closes a connection with a machine-readable reason when the
// principal lacks the required capability (CloseReasonPolicyViolated) or
// a bind names an unknown or inactive subscription (CloseReasonCannotAccept).
package wire
