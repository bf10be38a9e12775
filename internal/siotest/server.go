// Package siotest provides an in-process Socket.IO 0.9 server for tests. It
// answers the handshake, upgrades the websocket transport and records the
// packets each connection receives.
package siotest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/kephasio/internal/protocol"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("siotest: connection closed")

// OnConnectFn is called after a websocket connection is upgraded and before
// its read loop starts.
type OnConnectFn = func(c *Conn)

// OnPacketFn is called for every decoded packet a connection receives. It
// runs on the connection's read goroutine.
type OnPacketFn = func(c *Conn, p *protocol.Packet)

// Config configures the fake server. Zero values select defaults.
type Config struct {
	// Resource is the resource path (default "/socket.io").
	Resource string
	// HeartbeatTimeout and CloseTimeout are the values advertised by the
	// handshake, in seconds.
	HeartbeatTimeout int
	CloseTimeout     int
	// Transports are the advertised transports (default websocket).
	Transports []string
	// HandshakeStatus, when set, is returned by the handshake instead of 200.
	HandshakeStatus int
	// AutoAck answers every packet that carries an ack id.
	AutoAck bool

	OnConnect OnConnectFn
	OnPacket  OnPacketFn
	Logger    *slog.Logger
}

// Server is an http.Handler speaking the server side of Socket.IO 0.9.
type Server struct {
	cfg      Config
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]bool
	conns    []*Conn
	waited   int
	// arrived is closed and replaced whenever a connection is added.
	arrived chan struct{}
}

// New creates a server. Serve it with httptest.NewServer.
func New(cfg Config) *Server {
	if cfg.Resource == "" {
		cfg.Resource = "/socket.io"
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 60
	}
	if len(cfg.Transports) == 0 {
		cfg.Transports = []string{"websocket"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]bool),
		arrived:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Post(cfg.Resource+"/1/", s.handleHandshake)
	r.Get(cfg.Resource+"/1/websocket/{sid}", s.handleWebSocket)
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHandshake answers "sid:heartbeat:close:transports".
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	if s.cfg.HandshakeStatus != 0 && s.cfg.HandshakeStatus != http.StatusOK {
		http.Error(w, http.StatusText(s.cfg.HandshakeStatus), s.cfg.HandshakeStatus)
		return
	}

	sid := strings.ReplaceAll(uuid.New().String(), "-", "")
	s.mu.Lock()
	s.sessions[sid] = true
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%s:%d:%d:%s", sid, s.cfg.HeartbeatTimeout, s.cfg.CloseTimeout, strings.Join(s.cfg.Transports, ","))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")

	s.mu.Lock()
	known := s.sessions[sid]
	delete(s.sessions, sid)
	s.mu.Unlock()

	if !known {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	c := &Conn{
		sid:     sid,
		ws:      ws,
		packets: make(chan string, 256),
		closed:  make(chan struct{}),
	}

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(c)
	}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	close(s.arrived)
	s.arrived = make(chan struct{})
	s.mu.Unlock()

	go s.handleConn(c)
}

// handleConn reads packets from c until the client goes away.
func (s *Server) handleConn(c *Conn) {
	defer c.shutdown()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("client connection ended", "sid", c.sid, "error", err)
			}
			return
		}

		text := string(data)
		c.record(text)

		p, err := protocol.Decode(text)
		if err != nil {
			s.logger.Debug("undecodable packet", "sid", c.sid, "packet", text)
			continue
		}
		if s.cfg.AutoAck && p.ID != 0 && p.Type != protocol.Ack {
			c.Send(protocol.Encode(protocol.Ack, 0, "", fmt.Sprint(p.ID)))
		}
		if s.cfg.OnPacket != nil {
			s.cfg.OnPacket(c, p)
		}
	}
}

// WaitConn returns the next connection, in upgrade order, that WaitConn has
// not returned yet.
func (s *Server) WaitConn(timeout time.Duration) (*Conn, error) {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		if s.waited < len(s.conns) {
			c := s.conns[s.waited]
			s.waited++
			s.mu.Unlock()
			return c, nil
		}
		arrived := s.arrived
		s.mu.Unlock()

		select {
		case <-arrived:
		case <-deadline:
			return nil, errors.New("siotest: no connection arrived")
		}
	}
}

// Conns returns every connection accepted so far.
func (s *Server) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Conn(nil), s.conns...)
}

// Conn is the server side of one client connection.
type Conn struct {
	sid string
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	received []string
	packets  chan string

	closeOnce sync.Once
	closed    chan struct{}
}

// SessionID returns the session id issued by the handshake.
func (c *Conn) SessionID() string {
	return c.sid
}

// Send writes one raw packet to the client.
func (c *Conn) Send(text string) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame and drops the connection.
func (c *Conn) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	c.shutdown()
	return nil
}

// Drop closes the underlying connection without a close frame.
func (c *Conn) Drop() {
	c.shutdown()
}

// Closed is closed once the connection has ended.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Received returns every raw packet received so far.
func (c *Conn) Received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

// Next waits for the next received packet.
func (c *Conn) Next(timeout time.Duration) (string, error) {
	select {
	case p := <-c.packets:
		return p, nil
	case <-time.After(timeout):
		return "", errors.New("siotest: no packet received")
	}
}

// NextOfType waits for the next received packet of type t, skipping others.
func (c *Conn) NextOfType(t protocol.PacketType, timeout time.Duration) (*protocol.Packet, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("siotest: no %s packet received", t)
		}
		text, err := c.Next(remaining)
		if err != nil {
			return nil, fmt.Errorf("siotest: no %s packet received", t)
		}
		p, err := protocol.Decode(text)
		if err == nil && p.Type == t {
			return p, nil
		}
	}
}

func (c *Conn) record(text string) {
	c.mu.Lock()
	c.received = append(c.received, text)
	c.mu.Unlock()

	select {
	case c.packets <- text:
	default:
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}
