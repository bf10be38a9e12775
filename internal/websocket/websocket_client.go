package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/kephasio/internal/engine"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// Config configures the websocket transport. Zero values select defaults.
type Config struct {
	// HandshakeTimeout bounds the websocket opening handshake (default 10s).
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single frame write (default 10s).
	WriteTimeout time.Duration
	// ReadBufferSize and WriteBufferSize size the connection buffers (default 1024).
	ReadBufferSize  int
	WriteBufferSize int
	// Header is sent with the opening handshake.
	Header http.Header
	Logger *slog.Logger
}

// Transport is an engine.Transport over a gorilla websocket connection.
type Transport struct {
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       *slog.Logger

	// mu guards conn and serializes frame writes.
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ engine.Transport = (*Transport)(nil)

// NewTransport creates a transport with no open connection.
func NewTransport(cfg Config) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		header:       cfg.Header,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
	}
}

// Run dials uri and reads text frames until the connection ends or ctx is
// cancelled.
func (t *Transport) Run(ctx context.Context, uri string, h engine.Handler) {
	conn, _, err := t.dialer.DialContext(ctx, uri, t.header)
	if err != nil {
		h.OnFail(fmt.Errorf("dial %s: %w", uri, err))
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()
	}()

	// Unblock ReadMessage when the engine gives up on the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	h.OnOpen()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("unexpected websocket close", "error", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			t.logger.Debug("ignoring non-text frame", "type", messageType)
			continue
		}
		h.OnMessage(string(data))
	}

	h.OnClose()
}

// Send writes text as a single text frame.
func (t *Transport) Send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal-closure close frame carrying reason. The read loop
// ends when the peer answers or the engine cancels Run.
func (t *Transport) Close(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	// Control frame payloads are limited to 125 bytes.
	if len(reason) > 123 {
		reason = reason[:123]
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return t.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}
