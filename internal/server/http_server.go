// Package server constructs and starts the Sketchroom HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/store"
)

// Server bundles the hub, the frame engine, and the HTTP handlers that admit
// connections into them.
type Server struct {
	cfg      Config
	store    store.Store
	gate     *auth.Gate
	hub      *Hub
	engine   *Engine
	origins  originPolicy
	upgrader websocket.Upgrader
}

// New wires a Server from cfg. A nil cfg uses NewConfig.
func New(cfg *Config, st store.Store, gate *auth.Gate) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	resolved := cfg.sanitized()

	hub := NewHub(resolved)
	engine := NewEngine(st, hub)
	hub.SetFrameHandler(engine)

	s := &Server{
		cfg:     resolved,
		store:   st,
		gate:    gate,
		hub:     hub,
		engine:  engine,
		origins: newOriginPolicy(resolved.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Engine returns the frame engine.
func (s *Server) Engine() *Engine {
	return s.engine
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// StartHub starts the hub in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Shutdown closes every connection and waits for background chat writes.
// The store is left open for the caller to close.
func (s *Server) Shutdown(timeout time.Duration) error {
	hubErr := s.hub.Shutdown(timeout)
	if err := s.engine.Wait(timeout); err != nil {
		log.Println("Timed out waiting for background persistence")
		return errors.Join(hubErr, fmt.Errorf("background persistence: %w", err))
	}
	return hubErr
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns nil after a graceful shutdown.
func StartServer(server *http.Server) error {
	log.Printf("Server listening on port %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(ctx context.Context, server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
