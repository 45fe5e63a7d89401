// Package server coordinates client registration, room membership, and
// connection cleanup for the Sketchroom WebSocket system via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub owns the live connections. Registration and deregistration are
// serialized through Run; membership and fan-out go through the Registry.
type Hub struct {
	registry   *Registry
	handler    FrameHandler
	cfg        Config
	register   chan *Client
	unregister chan *Client
	fanout     sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub for cfg. Frames are dispatched to the handler set
// with SetFrameHandler.
func NewHub(cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		cfg:        cfg.sanitized(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetFrameHandler sets the handler for inbound frames. It must be called
// before Run.
func (h *Hub) SetFrameHandler(handler FrameHandler) {
	h.handler = handler
}

// Registry returns the membership registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Context is cancelled when the hub shuts down.
func (h *Hub) Context() context.Context {
	return h.ctx
}

func (h *Hub) config() Config {
	return h.cfg
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	return h.registry.RoomCount()
}

// Register hands an admitted client to the hub, which starts its pumps. It
// reports false if the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		h.removeClient(c)
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	if !h.registry.Register(c, c.userID) {
		return
	}
	log.Printf("Client %s registered for user %s from %s. Total clients: %d", c.id, c.userID, c.addr, h.registry.Len())

	if h.cfg.EnforceTokenExpiry {
		c.scheduleExpiry(c.expiresAt)
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump(h.ctx, h.handler)
	}()
}

func (h *Hub) removeClient(c *Client) {
	if c == nil {
		return
	}
	removed := h.registry.Unregister(c)
	c.stopExpiry()
	c.closeSend()
	if removed {
		log.Printf("Client %s unregistered for user %s from %s. Total clients: %d", c.id, c.userID, c.addr, h.registry.Len())
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.registry.Clients()
	for _, client := range clients {
		h.removeClient(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
