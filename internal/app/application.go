// Package app wires the relay's components together and runs the HTTP
// server hosting the WebSocket endpoint and the health check.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/broadcast"
	"chatrelay/internal/config"
	"chatrelay/internal/registry"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
	"chatrelay/internal/websocket"
)

// Application owns the component graph and the HTTP server.
type Application struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *store.Store
	sessions   *registry.Registry
	conns      *websocket.Registry
	httpServer *http.Server
}

// New builds the application. Initialization order follows the dependency
// chain: store, registries, broadcaster, relay, transport handler, HTTP.
func New(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	eventStore, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	sessions := registry.New(log)
	conns := websocket.NewRegistry()
	broadcaster := broadcast.New(conns, log)
	stateMachine := relay.New(sessions, eventStore, broadcaster, cfg, log)
	wsHandler := websocket.NewHandler(conns, stateMachine, cfg.WebSocket, log)

	app := &Application{
		cfg:      cfg,
		log:      log.With().Str("component", "app").Logger(),
		store:    eventStore,
		sessions: sessions,
		conns:    conns,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/healthz", app.handleHealth)

	app.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

// Start begins serving and returns once the listener is up or startup
// failed.
func (a *Application) Start(ctx context.Context) error {
	a.log.Info().Str("addr", a.httpServer.Addr).Msg("starting")

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		a.log.Info().Msg("started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting connections, then closes the store.
func (a *Application) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown failed")
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close event store: %w", err)
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}
