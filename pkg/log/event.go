package log

import (
	"time"
)

// Event is one protocol log record. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the socket (UUID). Empty for dispatcher
	// events that concern no single connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Subject is the authenticated identity's subject.
	Subject string `cbor:"7,keyasint,omitempty"`

	// SubscriptionID is the subscription id part, once known.
	SubscriptionID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"12,keyasint,omitempty"`
	Delivery    *DeliveryEvent    `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the websocket connection handler.
	LayerTransport Layer = 0
	// LayerBinder is the session binder.
	LayerBinder Layer = 1
	// LayerDispatch is the event dispatcher.
	LayerDispatch Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerBinder:
		return "BINDER"
	case LayerDispatch:
		return "DISPATCH"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage  Category = 0
	CategoryControl  Category = 1
	CategoryState    Category = 2
	CategoryError    Category = 3
	CategoryDelivery Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryDelivery:
		return "DELIVERY"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory resolves a category name as printed by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryMessage; c <= CategoryDelivery; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// MessageEvent captures one text frame.
type MessageEvent struct {
	// Type is the frame kind.
	Type MessageType `cbor:"1,keyasint"`

	// Size is the frame size in bytes.
	Size int `cbor:"2,keyasint"`

	// Resource is the pushed resource ("Patient/123") for payload frames.
	Resource string `cbor:"3,keyasint,omitempty"`

	// Format is the payload format name for payload frames.
	Format string `cbor:"4,keyasint,omitempty"`

	// Text is the frame text, truncated for payloads.
	Text string `cbor:"5,keyasint,omitempty"`

	// Truncated indicates Text was cut.
	Truncated bool `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes the text frames of the protocol.
type MessageType uint8

const (
	MessageTypeBind    MessageType = 0
	MessageTypeBound   MessageType = 1
	MessageTypePayload MessageType = 2
	MessageTypePing    MessageType = 3
	MessageTypeOther   MessageType = 4
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeBind:
		return "BIND"
	case MessageTypeBound:
		return "BOUND"
	case MessageTypePayload:
		return "PAYLOAD"
	case MessageTypePing:
		return "PING"
	case MessageTypeOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgEvent captures websocket control frames.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Payload is the ping or pong application data.
	Payload []byte `cbor:"2,keyasint,omitempty"`

	// Mismatch marks a pong whose payload differs from the last ping.
	Mismatch bool `cbor:"3,keyasint,omitempty"`

	// CloseCode is the websocket close code for close messages.
	CloseCode *int `cbor:"4,keyasint,omitempty"`

	// CloseReason is the close reason text.
	CloseReason string `cbor:"5,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// DeliveryEvent records what the dispatcher decided for one recipient.
type DeliveryEvent struct {
	// Resource is the event's resource reference.
	Resource string `cbor:"1,keyasint"`

	// Operation is create, update or delete.
	Operation string `cbor:"2,keyasint,omitempty"`

	// Decision is the outcome.
	Decision Decision `cbor:"3,keyasint"`

	// Reason is the authorization reason or failure text.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// Decision is the outcome of a delivery attempt.
type Decision uint8

const (
	DecisionDelivered  Decision = 0
	DecisionDenied     Decision = 1
	DecisionNoRule     Decision = 2
	DecisionSendFailed Decision = 3
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionDelivered:
		return "DELIVERED"
	case DecisionDenied:
		return "DENIED"
	case DecisionNoRule:
		return "NO_RULE"
	case DecisionSendFailed:
		return "SEND_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
