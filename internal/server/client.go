// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, token expiry, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
)

// FrameHandler executes one inbound frame on behalf of a client. Frames from a
// single client are handed over one at a time in arrival order.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, raw []byte)
}

// Client is one authenticated connection. The user id is bound at admission
// and never changes.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string

	mu     sync.Mutex
	closed bool

	maxMessageSize int64
	limiter        *frameLimiter
	rateLimit      RateLimitConfig

	expiresAt   time.Time
	expiryTimer *time.Timer
}

// NewClient creates a Client for an admitted connection. conn may be nil for
// clients that never run pumps.
func NewClient(conn *websocket.Conn, hub *Hub, userID, addr string) *Client {
	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		addr:   addr,
	}
	c.applyConfig(hub.config())
	return c
}

func (c *Client) applyConfig(cfg Config) {
	c.maxMessageSize = cfg.MaxMessageSize
	c.rateLimit = cfg.RateLimit
	c.limiter = newFrameLimiter(cfg.RateLimit)
	if c.conn != nil {
		c.conn.SetReadLimit(cfg.MaxMessageSize)
	}
}

// ID returns the session handle of the connection.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the identity bound at admission.
func (c *Client) UserID() string {
	return c.userID
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// trySend queues payload without blocking. It returns false when the buffer
// is full or the client is closed.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once, which makes writePump send a close
// frame and drop the connection.
func (c *Client) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) sendJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error encoding frame for %s: %v", c.addr, err)
		return false
	}
	if !c.trySend(payload) {
		log.Printf("Dropped frame for %s (user %s): send buffer full or closed", c.addr, c.userID)
		return false
	}
	return true
}

func (c *Client) sendError(perr *ProtocolError) {
	c.sendJSON(errorFrame{Error: perr.Message})
	if perr.Terminal() {
		c.closeSend()
	}
}

// scheduleExpiry arms a timer that disconnects the client when its token
// expires. It does nothing for tokens without an expiry.
func (c *Client) scheduleExpiry(expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expiresAt = expiresAt
	c.expiryTimer = time.AfterFunc(time.Until(expiresAt), c.expire)
}

func (c *Client) stopExpiry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
	}
}

func (c *Client) expire() {
	log.Printf("Token for user %s from %s expired; disconnecting", c.userID, c.addr)
	c.sendError(newProtocolError(KindAuth, "Token expired", nil))
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s (user %s) disconnected: %v", c.addr, c.userID, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d frames per %s); discarding frame", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// readPump hands every frame to handler in order. A frame's store call runs
// to completion even if the peer disconnects meanwhile.
func (c *Client) readPump(ctx context.Context, handler FrameHandler) {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if c.isClosed() {
			return
		}
		handler.HandleFrame(ctx, c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage writes one outgoing frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing frame to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
