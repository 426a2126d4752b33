package wire

import "github.com/gorilla/websocket"

// CloseReason is a machine-readable reason the server closes a connection.
type CloseReason uint8

const (
	// CloseReasonNormal is an orderly shutdown.
	CloseReasonNormal CloseReason = iota

	// CloseReasonCannotAccept rejects a bind to an unknown or inactive
	// subscription.
	CloseReasonCannotAccept

	// CloseReasonPolicyViolated rejects a principal that lacks the
	// required capability.
	CloseReasonPolicyViolated

	// CloseReasonGoingAway is sent when the server shuts down.
	CloseReasonGoingAway
)

// Code returns the websocket close code (RFC 6455 §7.4.1) for the reason.
func (r CloseReason) Code() int {
	switch r {
	case CloseReasonCannotAccept:
		return websocket.CloseUnsupportedData
	case CloseReasonPolicyViolated:
		return websocket.ClosePolicyViolation
	case CloseReasonGoingAway:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}

// String returns the reason name, also used as the close frame text.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonNormal:
		return "normal"
	case CloseReasonCannotAccept:
		return "cannot accept"
	case CloseReasonPolicyViolated:
		return "policy violated"
	case CloseReasonGoingAway:
		return "going away"
	default:
		return "unknown"
	}
}

// ReasonFromCode maps a websocket close code back to a CloseReason.
func ReasonFromCode(code int) CloseReason {
	switch code {
	case websocket.CloseUnsupportedData:
		return CloseReasonCannotAccept
	case websocket.ClosePolicyViolation:
		return CloseReasonPolicyViolated
	case websocket.CloseGoingAway:
		return CloseReasonGoingAway
	default:
		return CloseReasonNormal
	}
}
