package wire

import (
	"errors"
	"strings"
)

// Frame verbs.
const (
	VerbBind  = "bind"
	VerbBound = "bound"
	VerbPing  = "ping"
)

// ErrNotBind is returned by ParseBind for any frame other than a bind request.
var ErrNotBind = errors.New("not a bind request")

// ParseBind extracts the subscription id part from a "bind <id>" frame.
// Surrounding whitespace is ignored. An empty id is not a bind request.
func ParseBind(frame string) (string, error) {
	verb, arg, ok := strings.Cut(strings.TrimSpace(frame), " ")
	if !ok || verb != VerbBind {
		return "", ErrNotBind
	}
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.ContainsAny(arg, " \t\r\n") {
		return "", ErrNotBind
	}
	return arg, nil
}

// Bind formats a bind request frame.
func Bind(subscriptionID string) string {
	return VerbBind + " " + subscriptionID
}

// Bound formats the bind acknowledgement frame.
func Bound(subscriptionID string) string {
	return VerbBound + " " + subscriptionID
}

// Ping formats the liveness-only notification sent for subscriptions whose
// channel declares no payload format.
func Ping(subscriptionID string) string {
	return VerbPing + " " + subscriptionID
}

// FrameKind classifies a server → client text frame.
type FrameKind uint8

const (
	// FramePayload is an encoded resource.
	FramePayload FrameKind = iota

	// FrameBound acknowledges a bind.
	FrameBound

	// FramePing is a payload-less notification.
	FramePing
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FramePayload:
		return "PAYLOAD"
	case FrameBound:
		return "BOUND"
	case FramePing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Classify splits a server frame into its kind and the subscription id part.
// Payload frames return an empty id; the body is the frame itself.
func Classify(frame string) (FrameKind, string) {
	verb, arg, ok := strings.Cut(frame, " ")
	if !ok || arg == "" || strings.ContainsAny(arg, " \t\r\n") {
		return FramePayload, ""
	}
	switch verb {
	case VerbBound:
		return FrameBound, arg
	case VerbPing:
		return FramePing, arg
	default:
		return FramePayload, ""
	}
}
