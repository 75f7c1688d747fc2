package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/triggers/internal/action"
	"github.com/c360studio/triggers/internal/config"
	"github.com/c360studio/triggers/internal/httpapi"
	"github.com/c360studio/triggers/internal/identity"
	"github.com/c360studio/triggers/internal/metrics"
	"github.com/c360studio/triggers/internal/poller"
	"github.com/c360studio/triggers/internal/queue"
	"github.com/c360studio/triggers/internal/registry"
	"github.com/c360studio/triggers/internal/store"
)

// App wires every component of the trigger service together: the NATS
// JetStream-backed store, the identity/queue/action clients, the poller
// supervisor, and the HTTP surface.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	natsConn *nats.Conn

	store      store.Store
	identity   *identity.Client
	queue      queue.Client
	action     action.Client
	registry   *registry.Registry
	metrics    *metrics.Metrics
	supervisor *poller.Supervisor

	httpServer *http.Server
}

// NewApp constructs an App from configuration without starting anything.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Start connects to NATS, wires every component, recovers ENABLED
// triggers, and starts serving HTTP.
func (a *App) Start(ctx context.Context) error {
	conn, err := nats.Connect(a.cfg.Store.NATSURL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.natsConn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	st, err := store.NewNATSStore(ctx, js, a.cfg.Store.Bucket)
	if err != nil {
		return fmt.Errorf("initialize trigger store: %w", err)
	}
	a.store = st

	a.identity = identity.NewClient(
		a.cfg.Identity.ClientID,
		a.cfg.Identity.ClientSecret,
		identity.WithBaseURL(a.cfg.Identity.BaseURL),
		identity.WithLogger(a.logger),
	)
	a.queue = queue.NewHTTPClient(a.cfg.Poller.QueueBaseURL)
	a.action = action.NewHTTPClient()
	a.registry = registry.New()
	a.metrics = metrics.New(prometheus.DefaultRegisterer)

	a.supervisor = poller.NewSupervisor(a.store, a.queue, a.action, a.identity, a.registry, a.metrics, a.logger)
	if err := a.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	mux := http.NewServeMux()
	httpapi.New(a.cfg.Service.Name, a.store, a.supervisor, a.identity, a.action, a.logger).Register(mux)
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))

	a.httpServer = &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server stopped", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the HTTP server, waits for in-flight pollers to finish,
// and closes the NATS connection.
func (a *App) Shutdown(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown error", "error", err)
		}
	}

	if a.supervisor != nil {
		if err := a.supervisor.Stop(ctx); err != nil {
			a.logger.Warn("supervisor shutdown error", "error", err)
		}
	}

	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
