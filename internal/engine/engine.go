package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/ack"
	"github.com/luciancaetano/kephasio/internal/handshake"
	"github.com/luciancaetano/kephasio/internal/heartbeat"
	"github.com/luciancaetano/kephasio/internal/protocol"
)

const defaultCloseTimeout = 5 * time.Second

// Config holds the engine settings. Zero values select defaults.
type Config struct {
	// Resource is the Socket.IO resource path (default "/socket.io").
	Resource string
	// Logger receives engine logs (default slog.Default()).
	Logger *slog.Logger
	// RateLimit limits application sends. Nil disables limiting.
	RateLimit *RateLimitConfig
	// Metrics enables Prometheus collectors when non-nil.
	Metrics *MetricsConfig
	// Acks is the ack registry (default ack.Shared()).
	Acks *ack.Registry
	// Clock drives the heartbeat scheduler (default real time).
	Clock heartbeat.Clock
	// CloseTimeout bounds the graceful close before the transport is torn
	// down (default 5s).
	CloseTimeout time.Duration

	ConnectionListener kephasio.ConnectionListener
	MessageListener    kephasio.MessageListener
}

// Engine is the Socket.IO connection state machine and packet dispatcher.
type Engine struct {
	id           string
	resource     string
	transport    Transport
	negotiator   Negotiator
	logger       *slog.Logger
	acks         *ack.Registry
	heartbeat    *heartbeat.Scheduler
	limiter      *rate.Limiter
	metrics      *metrics
	closeTimeout time.Duration

	mu      sync.RWMutex
	state   kephasio.State
	session *handshake.Session
	cancel  context.CancelFunc
	done    chan struct{}

	// sendMu serializes writes to the transport.
	sendMu sync.Mutex

	// callbacks counts listener calls running on the network goroutine.
	callbacks atomic.Int32

	listenerMu   sync.RWMutex
	connListener kephasio.ConnectionListener
	msgListener  kephasio.MessageListener
}

var _ kephasio.Client = (*Engine)(nil)

// New creates a disconnected engine.
func New(t Transport, n Negotiator, cfg Config) *Engine {
	if cfg.Resource == "" {
		cfg.Resource = kephasio.DefaultResource
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Acks == nil {
		cfg.Acks = ack.Shared()
	}
	if cfg.Clock == nil {
		cfg.Clock = heartbeat.RealClock()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}

	id := uuid.New().String()
	e := &Engine{
		id:           id,
		resource:     cfg.Resource,
		transport:    t,
		negotiator:   n,
		logger:       cfg.Logger.With("client_id", id),
		acks:         cfg.Acks,
		limiter:      cfg.RateLimit.limiter(),
		metrics:      newMetrics(cfg.Metrics),
		closeTimeout: cfg.CloseTimeout,
		state:        kephasio.StateDisconnected,
		connListener: cfg.ConnectionListener,
		msgListener:  cfg.MessageListener,
	}
	e.heartbeat = heartbeat.New(e.sendHeartbeat,
		heartbeat.WithClock(cfg.Clock),
		heartbeat.WithLogger(e.logger))
	e.metrics.setState(float64(kephasio.StateDisconnected))

	return e
}

// ID returns the unique identifier of this client instance.
func (e *Engine) ID() string {
	return e.id
}

// Resource returns the Socket.IO resource path.
func (e *Engine) Resource() string {
	return e.resource
}

// State returns the connection state.
func (e *Engine) State() kephasio.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Connected reports whether the engine is in the Connected state.
func (e *Engine) Connected() bool {
	return e.State() == kephasio.StateConnected
}

// Session returns a copy of the negotiated session, or nil.
func (e *Engine) Session() *handshake.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return nil
	}
	s := *e.session
	return &s
}

// SessionID returns the negotiated session id or "".
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return ""
	}
	return e.session.ID
}

// SetConnectionListener replaces the connection listener.
func (e *Engine) SetConnectionListener(l kephasio.ConnectionListener) {
	e.listenerMu.Lock()
	e.connListener = l
	e.listenerMu.Unlock()
}

// SetMessageListener replaces the message listener.
func (e *Engine) SetMessageListener(l kephasio.MessageListener) {
	e.listenerMu.Lock()
	e.msgListener = l
	e.listenerMu.Unlock()
}

func (e *Engine) connectionListener() kephasio.ConnectionListener {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	return e.connListener
}

func (e *Engine) messageListener() kephasio.MessageListener {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	return e.msgListener
}

func (e *Engine) setStateLocked(s kephasio.State) {
	e.state = s
	e.metrics.setState(float64(s))
}

// Connect starts the handshake and the transport on a new goroutine. Failures
// are reported to ConnectionListener.OnFail.
func (e *Engine) Connect(uri string) error {
	e.mu.Lock()
	if e.state != kephasio.StateDisconnected || e.running() {
		e.mu.Unlock()
		return kephasio.ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.setStateLocked(kephasio.StateConnecting)
	e.mu.Unlock()

	e.logger.Info("connecting", "uri", uri, "resource", e.resource)
	go e.run(ctx, cancel, uri, done)
	return nil
}

// running reports whether the previous worker is still alive. Callers hold mu.
func (e *Engine) running() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, uri string, done chan struct{}) {
	defer close(done)
	defer cancel()

	start := time.Now()
	session, err := e.negotiator.Negotiate(ctx, uri, e.resource)
	e.metrics.handshake(time.Since(start))
	if err != nil {
		e.onFail(err)
		return
	}

	e.mu.Lock()
	if e.state != kephasio.StateConnecting || ctx.Err() != nil {
		e.mu.Unlock()
		e.logger.Info("connection cancelled after handshake", "sid", session.ID)
		return
	}
	e.session = session
	e.mu.Unlock()

	e.transport.Run(ctx, session.URI, transportHandler{e})

	e.mu.Lock()
	if e.state != kephasio.StateDisconnected {
		e.setStateLocked(kephasio.StateDisconnected)
		e.session = nil
	}
	e.mu.Unlock()
	e.heartbeat.Stop()

	e.logger.Debug("network goroutine exited")
}

// transportHandler adapts the engine to the Handler interface without
// exporting the callbacks on Engine.
type transportHandler struct {
	e *Engine
}

func (h transportHandler) OnOpen()               { h.e.onOpen() }
func (h transportHandler) OnClose()              { h.e.onClose() }
func (h transportHandler) OnFail(err error)      { h.e.onFail(err) }
func (h transportHandler) OnMessage(text string) { h.e.dispatch(text) }

func (e *Engine) onOpen() {
	e.mu.Lock()
	if e.state != kephasio.StateConnecting || e.session == nil {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(kephasio.StateConnected)
	interval := e.session.HeartbeatTimeout
	sid := e.session.ID
	e.mu.Unlock()

	e.heartbeat.Start(interval)
	e.logger.Info("connected", "sid", sid)

	if l := e.connectionListener(); l.OnOpen != nil {
		e.callback(l.OnOpen)
	}
}

func (e *Engine) onFail(err error) {
	e.mu.Lock()
	prev := e.state
	e.setStateLocked(kephasio.StateDisconnected)
	e.session = nil
	e.mu.Unlock()

	e.heartbeat.Stop()

	// A failure after Close moved us to Disconnected is the cancellation itself.
	if prev == kephasio.StateDisconnected {
		e.logger.Debug("connection attempt aborted", "error", err)
		return
	}

	e.logger.Error("connection failed", "error", err)
	if l := e.connectionListener(); l.OnFail != nil {
		e.callback(func() { l.OnFail(err) })
	}
}

func (e *Engine) onClose() {
	e.mu.Lock()
	prev := e.state
	e.setStateLocked(kephasio.StateDisconnected)
	e.session = nil
	e.mu.Unlock()

	e.heartbeat.Stop()

	if prev != kephasio.StateConnected && prev != kephasio.StateClosing {
		return
	}

	e.logger.Info("disconnected")
	if l := e.connectionListener(); l.OnClose != nil {
		e.callback(l.OnClose)
	}
}

// callback runs a listener on the network goroutine.
func (e *Engine) callback(fn func()) {
	e.callbacks.Add(1)
	defer e.callbacks.Add(-1)
	fn()
}

// Close sends a disconnect packet when connected, closes the transport and
// waits for the network goroutine to exit. Called from a listener, it returns
// without waiting and the network goroutine exits once the listener returns.
func (e *Engine) Close() error {
	done := e.shutdown("Ended by user")
	if done == nil || e.callbacks.Load() > 0 {
		return nil
	}
	<-done
	return nil
}

// shutdown starts the close sequence and returns the worker's done channel.
// It never blocks on the worker, so it is safe on the network goroutine.
func (e *Engine) shutdown(reason string) <-chan struct{} {
	e.mu.Lock()
	prev := e.state
	done := e.done
	cancel := e.cancel
	switch prev {
	case kephasio.StateConnected:
		e.setStateLocked(kephasio.StateClosing)
	case kephasio.StateConnecting:
		e.setStateLocked(kephasio.StateDisconnected)
		e.session = nil
	}
	e.mu.Unlock()

	e.heartbeat.Stop()

	switch prev {
	case kephasio.StateConnected:
		e.logger.Info("closing connection", "reason", reason)
		if err := e.write(protocol.Disconnect, protocol.Encode(protocol.Disconnect, 0, "", ""), true); err != nil {
			e.logger.Warn("failed to send disconnect packet", "error", err)
		}
		if err := e.transport.Close(reason); err != nil {
			e.logger.Warn("transport close failed", "error", err)
		}
		if cancel != nil && done != nil {
			go func() {
				select {
				case <-done:
				case <-time.After(e.closeTimeout):
					e.logger.Warn("graceful close timed out", "timeout", e.closeTimeout)
					cancel()
				}
			}()
		}
	case kephasio.StateConnecting:
		e.logger.Info("aborting connection attempt")
		if cancel != nil {
			cancel()
		}
	default:
		e.logger.Warn("close requested", "error", kephasio.ErrNoActiveSession, "state", prev.String())
	}

	return done
}

// write sends text to the transport if the state allows it. Closing is
// accepted only for the disconnect packet of the close sequence.
func (e *Engine) write(t protocol.PacketType, text string, allowClosing bool) error {
	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()

	if state != kephasio.StateConnected && !(allowClosing && state == kephasio.StateClosing) {
		e.metrics.sendError("no_session")
		e.logger.Warn("send rejected", "error", kephasio.ErrNoActiveSession, "type", t.String())
		return kephasio.ErrNoActiveSession
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if err := e.transport.Send(text); err != nil {
		e.metrics.sendError("transport")
		e.logger.Error("transport send failed", "error", err, "type", t.String())
		return fmt.Errorf("send %s packet: %w", t, err)
	}

	e.metrics.sent(t)
	e.logger.Debug("sent packet", "packet", text)
	return nil
}

// send is the path of application packets: state check, rate limit, write.
func (e *Engine) send(t protocol.PacketType, text string) error {
	if !e.Connected() {
		e.metrics.sendError("no_session")
		e.logger.Warn("send rejected", "error", kephasio.ErrNoActiveSession, "type", t.String())
		return kephasio.ErrNoActiveSession
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.metrics.sendError("rate_limited")
		e.logger.Warn("send rejected", "error", kephasio.ErrRateLimited, "type", t.String())
		return kephasio.ErrRateLimited
	}
	return e.write(t, text, false)
}

func (e *Engine) sendWithAck(t protocol.PacketType, endpoint, data string, fn func()) error {
	if !e.Connected() {
		e.metrics.sendError("no_session")
		e.logger.Warn("send rejected", "error", kephasio.ErrNoActiveSession, "type", t.String())
		return kephasio.ErrNoActiveSession
	}

	id := e.acks.Next()
	e.acks.Register(id, fn)
	e.metrics.acksPending(e.acks.Len())

	if err := e.send(t, protocol.Encode(t, id, endpoint, data)); err != nil {
		e.acks.Remove(id)
		e.metrics.acksPending(e.acks.Len())
		return err
	}
	return nil
}

func (e *Engine) sendHeartbeat() {
	if err := e.write(protocol.Heartbeat, protocol.Encode(protocol.Heartbeat, 0, "", ""), false); err != nil {
		e.logger.Debug("heartbeat not sent", "error", err)
	}
}

// Send writes a pre-framed packet verbatim.
func (e *Engine) Send(raw string) error {
	t := protocol.Invalid
	if head, _, ok := strings.Cut(raw, ":"); ok {
		if n, err := strconv.Atoi(head); err == nil {
			t = protocol.PacketType(n)
		}
	}
	return e.send(t, raw)
}

// SendPacket frames and sends a custom packet.
func (e *Engine) SendPacket(packetType int, id uint64, endpoint, data string) error {
	t := protocol.PacketType(packetType)
	return e.send(t, protocol.Encode(t, id, endpoint, data))
}

// Emit sends an event without requesting an acknowledgment.
func (e *Engine) Emit(endpoint, name string, args ...any) error {
	data, err := protocol.EncodeEvent(name, args...)
	if err != nil {
		return err
	}
	return e.send(protocol.Event, protocol.Encode(protocol.Event, 0, endpoint, data))
}

// EmitWithAck sends an event and calls ack once the server acknowledges it.
func (e *Engine) EmitWithAck(endpoint, name string, ack func(), args ...any) error {
	data, err := protocol.EncodeEvent(name, args...)
	if err != nil {
		return err
	}
	return e.sendWithAck(protocol.Event, endpoint, data, ack)
}

// Message sends a plain message.
func (e *Engine) Message(endpoint, data string) error {
	return e.send(protocol.Message, protocol.Encode(protocol.Message, 0, endpoint, data))
}

// MessageWithAck sends a plain message requesting an acknowledgment.
func (e *Engine) MessageWithAck(endpoint, data string, ack func()) error {
	return e.sendWithAck(protocol.Message, endpoint, data, ack)
}

// JSONMessage marshals v and sends it as a JSON message.
func (e *Engine) JSONMessage(endpoint string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal json message: %w", err)
	}
	return e.send(protocol.JSON, protocol.Encode(protocol.JSON, 0, endpoint, string(data)))
}

// JSONMessageWithAck sends a JSON message requesting an acknowledgment.
func (e *Engine) JSONMessageWithAck(endpoint string, v any, ack func()) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal json message: %w", err)
	}
	return e.sendWithAck(protocol.JSON, endpoint, string(data), ack)
}

// ConnectEndpoint asks the server to open a namespace.
func (e *Engine) ConnectEndpoint(endpoint string) error {
	return e.send(protocol.Connect, protocol.Encode(protocol.Connect, 0, endpoint, ""))
}

// DisconnectEndpoint asks the server to close a namespace.
func (e *Engine) DisconnectEndpoint(endpoint string) error {
	return e.send(protocol.Disconnect, protocol.Encode(protocol.Disconnect, 0, endpoint, ""))
}
