// Package sio builds ready-to-use Socket.IO clients: the engine wired to the
// HTTP handshake and the gorilla websocket transport.
package sio

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/ack"
	"github.com/luciancaetano/kephasio/internal/engine"
	"github.com/luciancaetano/kephasio/internal/handshake"
	"github.com/luciancaetano/kephasio/internal/websocket"
)

type RateLimitConfig = engine.RateLimitConfig
type MetricsConfig = engine.MetricsConfig

// Dialer opens the TCP connection of the handshake request. *net.Dialer
// satisfies it.
type Dialer = handshake.Dialer

// Config holds the client settings. Build it with NewConfig.
type Config struct {
	Resource           string
	Logger             *slog.Logger
	RateLimit          *RateLimitConfig
	Metrics            *MetricsConfig
	Tracer             trace.Tracer
	Dialer             Dialer
	Header             http.Header
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	CloseTimeout       time.Duration
	PrivateAcks        bool
	ConnectionListener kephasio.ConnectionListener
	MessageListener    kephasio.MessageListener
}

// Option configures a Config.
type Option func(*Config)

// NewConfig returns a Config with the default resource, the default rate
// limit and opts applied.
//
// The default rate limit allows 100 application sends per second with a burst
// of 200. Sends beyond it fail with kephasio.ErrRateLimited instead of waiting.
// Heartbeats, ack replies and the disconnect packet are never limited. Pass
// WithRateLimit(NoRateLimit()) to turn it off.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Resource:  kephasio.DefaultResource,
		Logger:    slog.Default(),
		RateLimit: DefaultRateLimitConfig(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithResource sets the Socket.IO resource path.
func WithResource(resource string) Option {
	return func(c *Config) { c.Resource = resource }
}

// WithLogger sets the logger for the client and its transport.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithRateLimit sets the outbound rate limit. Use NoRateLimit() to disable it.
func WithRateLimit(cfg *RateLimitConfig) Option {
	return func(c *Config) { c.RateLimit = cfg }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(cfg *MetricsConfig) Option {
	return func(c *Config) { c.Metrics = cfg }
}

// WithTracer sets the tracer of the handshake span. The global provider is
// used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) { c.Tracer = tracer }
}

// WithDialer sets the dialer of the handshake request.
func WithDialer(d Dialer) Option {
	return func(c *Config) { c.Dialer = d }
}

// WithHeader sets extra headers for the websocket opening handshake.
func WithHeader(h http.Header) Option {
	return func(c *Config) { c.Header = h }
}

// WithTimeouts sets the websocket handshake, frame write and graceful close
// timeouts. Zero keeps the default.
func WithTimeouts(handshakeTimeout, writeTimeout, closeTimeout time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = handshakeTimeout
		c.WriteTimeout = writeTimeout
		c.CloseTimeout = closeTimeout
	}
}

// WithPrivateAcks gives the client its own ack id counter instead of the
// process-wide one.
func WithPrivateAcks() Option {
	return func(c *Config) { c.PrivateAcks = true }
}

// WithConnectionListener sets the connection lifecycle callbacks.
func WithConnectionListener(l kephasio.ConnectionListener) Option {
	return func(c *Config) { c.ConnectionListener = l }
}

// WithMessageListener sets the packet callbacks.
func WithMessageListener(l kephasio.MessageListener) Option {
	return func(c *Config) { c.MessageListener = l }
}

// New creates a disconnected client.
//
// Example:
//
//	client := sio.New(sio.NewConfig(sio.WithResource("/socket.io")))
//	client.Connect("ws://localhost:8080")
func New(cfg *Config) kephasio.Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	negotiator := handshake.NewNegotiator()
	negotiator.Logger = logger
	negotiator.Transport = kephasio.TransportWebsocket
	if cfg.Dialer != nil {
		negotiator.Dialer = cfg.Dialer
	} else if cfg.HandshakeTimeout > 0 {
		negotiator.Dialer = &net.Dialer{Timeout: cfg.HandshakeTimeout}
	}
	if cfg.Tracer != nil {
		negotiator.Tracer = cfg.Tracer
	}

	transport := websocket.NewTransport(websocket.Config{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Header:           cfg.Header,
		Logger:           logger,
	})

	var acks *ack.Registry
	if cfg.PrivateAcks {
		acks = ack.New()
	}

	return engine.New(transport, negotiator, engine.Config{
		Resource:           cfg.Resource,
		Logger:             logger,
		RateLimit:          cfg.RateLimit,
		Metrics:            cfg.Metrics,
		Acks:               acks,
		CloseTimeout:       cfg.CloseTimeout,
		ConnectionListener: cfg.ConnectionListener,
		MessageListener:    cfg.MessageListener,
	})
}

// DefaultRateLimitConfig returns the default outbound rate limit
func DefaultRateLimitConfig() *RateLimitConfig {
	return engine.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return engine.NoRateLimit()
}
