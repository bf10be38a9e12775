package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/config"
	"github.com/luciancaetano/kephasio/sio"
)

// globalFlags are the persistent flags shared by every command. Non-empty
// values override the configuration file.
type globalFlags struct {
	configPath  string
	url         string
	resource    string
	endpoint    string
	logLevel    string
	metricsAddr string
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.url != "" {
		cfg.Server.URL = f.url
	}
	if f.resource != "" {
		cfg.Server.Resource = f.resource
	}
	if f.endpoint != "" {
		cfg.Server.Endpoint = f.endpoint
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a connected client plus the process resources around it.
type session struct {
	client  kephasio.Client
	logger  *slog.Logger
	metrics *http.Server
	closed  chan struct{}
}

// connect builds a client from cfg, connects it and waits for the session to
// open. ml receives application packets.
func connect(ctx context.Context, cfg *config.Config, ml kephasio.MessageListener) (*session, error) {
	logger := cfg.Logger()
	s := &session{
		logger: logger,
		closed: make(chan struct{}, 1),
	}

	opened := make(chan struct{}, 1)
	failed := make(chan error, 1)

	opts := append(cfg.ClientOptions(),
		sio.WithLogger(logger),
		sio.WithMessageListener(ml),
		sio.WithConnectionListener(kephasio.ConnectionListener{
			OnOpen:  func() { opened <- struct{}{} },
			OnClose: func() { s.closed <- struct{}{} },
			OnFail:  func(err error) { failed <- err },
		}),
	)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, sio.WithMetrics(&sio.MetricsConfig{
			Namespace: cfg.Metrics.Namespace,
			Registry:  reg,
		}))
		s.metrics = serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	s.client = sio.New(sio.NewConfig(opts...))
	if err := s.client.Connect(cfg.Server.URL); err != nil {
		s.Close()
		return nil, err
	}

	select {
	case <-opened:
	case err := <-failed:
		s.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Server.URL, err)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	if cfg.Server.Endpoint != "" {
		if err := s.client.ConnectEndpoint(cfg.Server.Endpoint); err != nil {
			s.Close()
			return nil, fmt.Errorf("join %s: %w", cfg.Server.Endpoint, err)
		}
	}

	return s, nil
}

// Close closes the client and the metrics listener.
func (s *session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.metrics.Shutdown(ctx)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}
