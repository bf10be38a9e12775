package engine

import (
	"context"

	"github.com/luciancaetano/kephasio/internal/handshake"
)

// Transport is the message-oriented connection the engine speaks over.
type Transport interface {
	// Run connects to uri and delivers events to h until the connection ends
	// or ctx is cancelled. It calls OnFail if the connection never opens, and
	// OnOpen followed eventually by OnClose otherwise.
	Run(ctx context.Context, uri string, h Handler)

	// Send writes one text message. Calls are serialized by the engine.
	Send(text string) error

	// Close starts a graceful close of the current connection.
	Close(reason string) error
}

// Handler receives transport events. Every method is called from the
// goroutine running Transport.Run.
type Handler interface {
	OnOpen()
	OnClose()
	OnFail(err error)
	OnMessage(text string)
}

// Negotiator performs the handshake that precedes the transport connection.
type Negotiator interface {
	Negotiate(ctx context.Context, rawURL, resource string) (*handshake.Session, error)
}
