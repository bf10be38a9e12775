package handshake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/kephasio"
)

// Handshake failures. All of them are fatal to the connection attempt except
// ErrUnknownStatus, which is logged and negotiation goes on with the body.
var (
	ErrInvalidProtocol      = errors.New("invalid http protocol")
	ErrServerRejected       = errors.New("server rejected client connection")
	ErrUnknownStatus        = errors.New("server returned unknown status code")
	ErrInvalidHandshakeBody = errors.New("invalid handshake body")
	ErrUnsupportedTransport = errors.New("server does not support transport")
)

// Error reports a failed handshake step.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return "handshake " + e.Step + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Session holds the parameters negotiated with the server.
type Session struct {
	ID                string
	HeartbeatTimeout  time.Duration
	DisconnectTimeout time.Duration
	Transports        []string
	Resource          string
	// URI is the transport endpoint for this session.
	URI string
}

// SupportsTransport reports whether the server allows the named transport,
// using the same match as negotiation.
func (s *Session) SupportsTransport(name string) bool {
	return offers(strings.Join(s.Transports, ","), name)
}

// offers reports whether the advertised transport list names transport. The
// list is matched as text, not split into names.
func offers(transports, transport string) bool {
	return strings.Contains(transports, transport)
}

// Dialer opens the TCP connection used for the handshake request.
// *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Negotiator performs the Socket.IO HTTP handshake.
type Negotiator struct {
	Dialer    Dialer
	Transport string
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// NewNegotiator returns a Negotiator for the websocket transport using a
// plain net.Dialer.
func NewNegotiator() *Negotiator {
	return &Negotiator{
		Dialer:    &net.Dialer{},
		Transport: "websocket",
		Logger:    slog.Default(),
		Tracer:    otel.Tracer("github.com/luciancaetano/kephasio/handshake"),
	}
}

// Negotiate performs the handshake against rawURL and returns the session.
// It blocks until the server closes the response; there is no internal
// timeout beyond what ctx and the dialer impose.
func (n *Negotiator) Negotiate(ctx context.Context, rawURL, resource string) (session *Session, err error) {
	n.defaults()

	ctx, span := n.Tracer.Start(ctx, "socketio.handshake",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("socketio.url", rawURL),
			attribute.String("socketio.resource", resource),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("socketio.sid", session.ID))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Step: "parse url", Err: err}
	}
	host, port := hostPort(u)
	addr := net.JoinHostPort(host, port)

	n.Logger.Debug("connecting to server", "addr", addr)
	conn, err := n.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Step: "dial", Err: err}
	}
	defer conn.Close()

	// Unblock reads if ctx is cancelled mid-exchange.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	n.Logger.Debug("sending handshake request", "resource", resource)
	if _, err := io.WriteString(conn, Request(host, resource)); err != nil {
		return nil, &Error{Step: "write request", Err: err}
	}

	body, err := n.readResponse(conn)
	if err != nil {
		return nil, err
	}

	session, err = ParseBody(body, n.Transport)
	if err != nil {
		return nil, err
	}
	session.Resource = resource
	session.URI = fmt.Sprintf("ws://%s%s/%d/%s/%s", addr, resource, kephasio.ProtocolVersion, n.Transport, session.ID)

	n.Logger.Info("handshake complete",
		"sid", session.ID,
		"heartbeat_timeout", session.HeartbeatTimeout,
		"disconnect_timeout", session.DisconnectTimeout,
		"transports", strings.Join(session.Transports, ","))

	return session, nil
}

func (n *Negotiator) defaults() {
	if n.Dialer == nil {
		n.Dialer = &net.Dialer{}
	}
	if n.Transport == "" {
		n.Transport = "websocket"
	}
	if n.Logger == nil {
		n.Logger = slog.Default()
	}
	if n.Tracer == nil {
		n.Tracer = otel.Tracer("github.com/luciancaetano/kephasio/handshake")
	}
}

// Request returns the handshake request text.
func Request(host, resource string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "POST %s/%d/ HTTP/1.0\r\n", resource, kephasio.ProtocolVersion)
	b.WriteString("Host: " + host + "\r\n")
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Connection: close\r\n\r\n")
	return b.String()
}

// readResponse validates the status line, skips headers and returns the body.
func (n *Negotiator) readResponse(r io.Reader) (string, error) {
	br := bufio.NewReader(r)

	statusLine, err := br.ReadString('\n')
	if err != nil && statusLine == "" {
		return "", &Error{Step: "read status", Err: err}
	}
	statusLine = strings.TrimRight(statusLine, "\r\n")

	version, rest, _ := strings.Cut(statusLine, " ")
	if !strings.HasPrefix(version, "HTTP/") {
		return "", &Error{Step: "status", Err: fmt.Errorf("%w: %q", ErrInvalidProtocol, version)}
	}
	codeText, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
	status, err := strconv.Atoi(codeText)
	if err != nil {
		return "", &Error{Step: "status", Err: fmt.Errorf("%w: status %q", ErrInvalidProtocol, codeText)}
	}

	for {
		line, err := br.ReadString('\n')
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
		n.Logger.Debug("handshake header", "header", strings.TrimRight(line, "\r\n"))
		if err != nil {
			break
		}
	}

	switch status {
	case 200:
		n.Logger.Debug("server accepted connection")
	case 401, 503:
		return "", &Error{Step: "status", Err: fmt.Errorf("%w: %d", ErrServerRejected, status)}
	default:
		n.Logger.Warn("handshake continuing after unexpected status",
			"error", fmt.Errorf("%w: %d", ErrUnknownStatus, status))
	}

	body, err := io.ReadAll(br)
	if err != nil && len(body) == 0 {
		return "", &Error{Step: "read body", Err: err}
	}
	return string(body), nil
}

// ParseBody parses "sid:heartbeat:disconnect:transports" and checks that
// transport is allowed.
func ParseBody(body, transport string) (*Session, error) {
	fields := strings.SplitN(strings.TrimSpace(body), ":", 4)
	if len(fields) < 4 || fields[0] == "" {
		return nil, &Error{Step: "body", Err: fmt.Errorf("%w: %q", ErrInvalidHandshakeBody, body)}
	}

	s := &Session{
		ID:                fields[0],
		HeartbeatTimeout:  seconds(fields[1]),
		DisconnectTimeout: seconds(fields[2]),
	}
	for _, t := range strings.Split(fields[3], ",") {
		if t = strings.TrimSpace(t); t != "" {
			s.Transports = append(s.Transports, t)
		}
	}

	if !offers(fields[3], transport) {
		return nil, &Error{Step: "transports", Err: fmt.Errorf("%w %q: %s", ErrUnsupportedTransport, transport, fields[3])}
	}
	return s, nil
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// seconds parses a non-negative number of seconds; anything else, including
// values too large for a time.Duration, is 0.
func seconds(s string) time.Duration {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 || n > maxSeconds {
		return 0
	}
	return time.Duration(n) * time.Second
}

func hostPort(u *url.URL) (string, string) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return host, port
}
