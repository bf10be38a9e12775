package kephasio

import "encoding/json"

// Client is a Socket.IO 0.9 client bound to a single server connection.
//
// All send operations are safe to call from any goroutine. They fail with
// ErrNoActiveSession while the client is not connected and perform no I/O
// in that case.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephasio/sio"
//
//	client := sio.New(sio.NewConfig(
//	    sio.WithConnectionListener(kephasio.ConnectionListener{
//	        OnOpen: func() { log.Println("connected") },
//	    }),
//	))
//
//	client.Connect("ws://localhost:8080")
//	defer client.Close()
type Client interface {
	// ID returns a unique identifier for this client instance.
	//
	// The ID is generated when the client is created and is unrelated to the
	// session id negotiated with the server.
	ID() string

	// Connect starts the handshake and transport connection in the background.
	//
	// Connect is fire-and-forget: handshake and transport failures are reported
	// through ConnectionListener.OnFail, never returned here. It returns
	// ErrAlreadyConnected if the client is not in the Disconnected state.
	Connect(uri string) error

	// Close sends a disconnect packet when connected, asks the transport to
	// close and blocks until every background goroutine of the client has
	// stopped. Called from a listener callback it starts the same sequence
	// but returns without waiting.
	Close() error

	// State returns the current connection state.
	State() State

	// Connected reports whether the client is in the Connected state.
	Connected() bool

	// SessionID returns the session id negotiated with the server, or an empty
	// string when no session is active.
	SessionID() string

	// Resource returns the Socket.IO resource path used for the handshake.
	Resource() string

	// Send writes a pre-framed packet to the transport verbatim.
	Send(raw string) error

	// SendPacket frames and sends a custom packet. An id of 0 renders as an
	// empty id field.
	SendPacket(packetType int, id uint64, endpoint, data string) error

	// Emit sends an event packet (type 5) with the given arguments.
	//
	// Example:
	//
	//	client.Emit("/chat", "message", map[string]string{"text": "hi"})
	Emit(endpoint, name string, args ...any) error

	// EmitWithAck sends an event packet requesting an acknowledgment. The ack
	// callback is invoked once when the server acknowledges the event.
	EmitWithAck(endpoint, name string, ack func(), args ...any) error

	// Message sends a plain message packet (type 3).
	Message(endpoint, data string) error

	// MessageWithAck sends a plain message packet requesting an acknowledgment.
	MessageWithAck(endpoint, data string, ack func()) error

	// JSONMessage marshals v and sends it as a JSON message packet (type 4).
	JSONMessage(endpoint string, v any) error

	// JSONMessageWithAck sends a JSON message packet requesting an acknowledgment.
	JSONMessageWithAck(endpoint string, v any, ack func()) error

	// ConnectEndpoint asks the server to open the given namespace.
	ConnectEndpoint(endpoint string) error

	// DisconnectEndpoint asks the server to close the given namespace.
	DisconnectEndpoint(endpoint string) error
}

// Responder carries the reply for a packet whose sender requested an
// acknowledgment.
//
// Listeners receive a nil Responder when no acknowledgment was requested. When
// the Responder is non-nil and Respond is called, an ack packet carrying the
// response is sent back to the server after the listener returns.
type Responder interface {
	Respond(data string)
}

// ConnectionListener receives connection lifecycle notifications.
//
// Every callback is optional. Callbacks run on the client's network goroutine.
type ConnectionListener struct {
	// OnOpen is called once the transport is open and the session is usable.
	OnOpen func()

	// OnClose is called after an established connection has been closed.
	OnClose func()

	// OnFail is called when a connection attempt fails, either during the
	// handshake or while the transport connects.
	OnFail func(err error)
}

// MessageListener receives decoded application packets.
//
// Every callback is optional. Callbacks run on the client's network goroutine;
// a callback that calls Close returns before the connection has shut down.
type MessageListener struct {
	// OnMessage receives plain message packets (type 3).
	OnMessage func(endpoint, data string, ack Responder)

	// OnJSON receives JSON message packets (type 4).
	OnJSON func(endpoint string, data json.RawMessage, ack Responder)

	// OnEvent receives event packets (type 5).
	OnEvent func(endpoint, name string, args []json.RawMessage, ack Responder)

	// OnError receives error packets (type 7).
	OnError func(endpoint, reason, advice string)
}
