// Package kephasio provides a client for the legacy Socket.IO protocol (revision 1,
// as spoken by socket.io 0.9 servers) over WebSocket.
//
// The client negotiates a session with an HTTP handshake, upgrades to a WebSocket
// connection, keeps the session alive with heartbeats, correlates acknowledgments
// and dispatches decoded packets to listener callbacks.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/kephasio"
//	    "github.com/luciancaetano/kephasio/sio"
//	)
//
//	client := sio.New(sio.NewConfig(
//	    sio.WithConnectionListener(kephasio.ConnectionListener{
//	        OnOpen: func() { log.Println("connected") },
//	        OnFail: func(err error) { log.Printf("connect failed: %v", err) },
//	    }),
//	    sio.WithMessageListener(kephasio.MessageListener{
//	        OnEvent: func(endpoint, name string, args []json.RawMessage, ack kephasio.Responder) {
//	            if ack != nil {
//	                ack.Respond("ok")
//	            }
//	        },
//	    }),
//	))
//
//	client.Connect("ws://localhost:8080")
//	client.EmitWithAck("", "hello", func() { log.Println("acked") }, "world")
//
//	client.Close()
//
// # Protocol Format
//
// Every packet is a text frame:
//
//	[type]:[id]:[endpoint]:[data]
//
// The id field is left empty when no acknowledgment is requested. Packet types:
//
//	0 disconnect  1 connect  2 heartbeat  3 message  4 json
//	5 event       6 ack      7 error      8 noop
//
// The handshake is a raw HTTP/1.0 POST to {resource}/1/ answered with
//
//	[sid]:[heartbeat timeout]:[disconnect timeout]:[transports]
//
// after which the client connects to ws://{host}:{port}{resource}/1/websocket/{sid}.
//
// # Acknowledgments
//
// Outbound acknowledgment ids come from a process-wide counter shared by every
// client, so ids never collide between clients of the same process. Pending acks
// the server never answers are kept until the process exits. sio.WithPrivateAcks
// gives a client its own counter instead.
//
// Inbound packets carrying an id receive a non-nil Responder; calling Respond sends
// an ack packet back once the listener returns.
//
// # Concurrency
//
//   - One network goroutine per connection runs the handshake and the transport loop
//   - All listener callbacks run on the network goroutine
//   - Send operations may be called from any goroutine and are serialized
//   - Close blocks until the network goroutine has exited, except when called
//     from a listener callback
//
// # Important
//
//   - No automatic reconnect: the caller owns the retry policy
//   - A malformed packet is logged and dropped, never fatal to the connection
//   - Close from a listener callback does not wait; the connection finishes
//     closing after the callback returns
package kephasio
