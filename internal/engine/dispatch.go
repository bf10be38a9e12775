package engine

import (
	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/protocol"
)

// dispatch decodes one inbound message and routes it by packet type. A bad
// packet or a panicking listener only affects this message.
func (e *Engine) dispatch(text string) {
	e.callbacks.Add(1)
	defer e.callbacks.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener panicked", "panic", r, "packet", text)
		}
	}()

	p, err := protocol.Decode(text)
	if err != nil {
		e.metrics.decodeError(err)
		e.logger.Warn("dropping packet", "error", err, "packet", text)
		return
	}
	e.metrics.received(p.Type)
	e.logger.Debug("received packet", "type", p.Type.String(), "packet", text)

	switch p.Type {
	case protocol.Disconnect:
		e.shutdown("disconnect requested by server")

	case protocol.Connect:
		e.logger.Info("endpoint connected", "endpoint", p.Endpoint)

	case protocol.Heartbeat:
		e.sendHeartbeat()

	case protocol.Message:
		l := e.messageListener()
		e.withResponder(p.ID, func(r kephasio.Responder) {
			if l.OnMessage != nil {
				l.OnMessage(p.Endpoint, p.Data, r)
			}
		})

	case protocol.JSON:
		l := e.messageListener()
		e.withResponder(p.ID, func(r kephasio.Responder) {
			if l.OnJSON != nil {
				l.OnJSON(p.Endpoint, p.JSON, r)
			}
		})

	case protocol.Event:
		l := e.messageListener()
		e.withResponder(p.ID, func(r kephasio.Responder) {
			if l.OnEvent != nil {
				l.OnEvent(p.Endpoint, p.Name, p.Args, r)
			}
		})

	case protocol.Ack:
		if !e.acks.Resolve(p.Data) {
			e.logger.Debug("ignoring ack with no pending callback", "payload", p.Data)
		}
		e.metrics.acksPending(e.acks.Len())

	case protocol.Error:
		e.logger.Warn("server error", "endpoint", p.Endpoint, "reason", p.Reason, "advice", p.Advice)
		if l := e.messageListener(); l.OnError != nil {
			l.OnError(p.Endpoint, p.Reason, p.Advice)
		}

	case protocol.Noop:

	default:
		e.logger.Warn("ignoring packet of unknown type", "packet", text)
	}
}

// responder collects the reply to a packet that requested an ack.
type responder struct {
	data    string
	written bool
}

func (r *responder) Respond(data string) {
	r.data = data
	r.written = true
}

// withResponder runs call with a Responder when id is positive and sends the
// ack afterwards if the listener responded. With id 0 the listener gets nil
// and nothing is sent.
func (e *Engine) withResponder(id uint64, call func(kephasio.Responder)) {
	if id == 0 {
		call(nil)
		return
	}

	r := &responder{}
	call(r)

	if !r.written {
		return
	}
	if err := e.write(protocol.Ack, protocol.Encode(protocol.Ack, id, "", r.data), false); err != nil {
		e.logger.Warn("failed to send ack", "id", id, "error", err)
	}
}
