package kephasio

import "errors"

// Transport names understood by the handshake.
const (
	TransportWebsocket = "websocket"
)

// DefaultResource is the resource path socket.io 0.9 servers listen on.
const DefaultResource = "/socket.io"

// ProtocolVersion is the Socket.IO protocol revision spoken by this package.
const ProtocolVersion = 1

// Client errors
var (
	// ErrNoActiveSession is returned by send operations while the client is
	// not connected.
	ErrNoActiveSession = errors.New("no active session")

	// ErrAlreadyConnected is returned by Connect when the client is not in the
	// Disconnected state.
	ErrAlreadyConnected = errors.New("client already connected or connecting")

	// ErrRateLimited is returned when an application send exceeds the
	// configured outbound rate limit.
	ErrRateLimited = errors.New("outbound rate limit exceeded")
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
