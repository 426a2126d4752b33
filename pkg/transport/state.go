package transport

import "errors"

// State is the lifecycle state of a connection.
type State uint32

const (
	// StateConnecting is an upgraded socket not yet authorized.
	StateConnecting State = iota

	// StateOpen accepts binds and receives notifications.
	StateOpen

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrSchedulerClosed  = errors.New("heartbeat scheduler closed")
)
