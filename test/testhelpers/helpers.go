// Package testhelpers provides common utilities for end-to-end tests of the
// Sketchroom server.
//
// It starts a complete server on an httptest listener backed by an in-memory
// store, issues tokens, and wraps WebSocket connections in a Peer that reads
// frames in the background so tests can wait for or rule out frames without
// breaking the connection.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/server"
	"github.com/Tyrowin/sketchroom/internal/store"
)

const (
	// Secret signs every token issued by an Env.
	Secret = "integration-secret"
	// Origin is the allowed origin sent by Dial.
	Origin = "http://localhost:5173"

	frameTimeout = 3 * time.Second
)

// Options customizes NewEnv.
type Options struct {
	// Store replaces the in-memory store. Wrap Env.DB to inject failures.
	Store     func(db *store.GormStore) store.Store
	Configure func(cfg *server.Config)
}

// Env is a running server.
type Env struct {
	Server *server.Server
	HTTP   *httptest.Server
	DB     *store.GormStore
	Gate   *auth.Gate
}

// NewEnv starts a server and stops it when the test ends.
func NewEnv(t *testing.T, opts Options) *Env {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)

	var st store.Store = db
	if opts.Store != nil {
		st = opts.Store(db)
	}

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{Origin}
	if opts.Configure != nil {
		opts.Configure(cfg)
	}

	gate := auth.NewGate(Secret)
	srv := server.New(cfg, st, gate)
	srv.StartHub()
	httpServer := httptest.NewServer(srv.SetupRoutes())

	t.Cleanup(func() {
		httpServer.Close()
		_ = srv.Shutdown(time.Second)
		_ = db.Close()
	})

	return &Env{Server: srv, HTTP: httpServer, DB: db, Gate: gate}
}

// Token issues a token for uid valid for ttl. A ttl of zero never expires.
func (e *Env) Token(t *testing.T, uid string, ttl time.Duration) string {
	t.Helper()
	token, err := e.Gate.Issue(uid, ttl)
	require.NoError(t, err)
	return token
}

// WSURL returns the WebSocket URL for path with the given query string.
func (e *Env) WSURL(path, query string) string {
	u := "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + path
	if query != "" {
		u += "?" + query
	}
	return u
}

// Dial connects uid to /ws and fails the test on error.
func (e *Env) Dial(t *testing.T, uid string) *Peer {
	t.Helper()
	return e.DialToken(t, e.Token(t, uid, time.Hour))
}

// DialToken connects to /ws with token, which need not be valid.
func (e *Env) DialToken(t *testing.T, token string) *Peer {
	t.Helper()
	conn, resp, err := DialURL(e.WSURL("/ws", "token="+token), Origin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	return NewPeer(t, conn)
}

// DialURL opens a WebSocket connection with an Origin header.
func DialURL(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(url, headers)
}

// Get performs an authenticated GET against the server.
func (e *Env) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.HTTP.URL+path, http.NoBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// WaitForClients blocks until the hub has n registered connections.
func (e *Env) WaitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.Server.Hub().ClientCount() == n },
		frameTimeout, 10*time.Millisecond, "expected %d clients", n)
}

// Peer is a client connection whose frames are read by a background
// goroutine.
type Peer struct {
	Conn   *websocket.Conn
	frames chan map[string]any
	closed chan error
}

// NewPeer starts reading conn and closes it when the test ends.
func NewPeer(t *testing.T, conn *websocket.Conn) *Peer {
	p := &Peer{
		Conn:   conn,
		frames: make(chan map[string]any, 64),
		closed: make(chan error, 1),
	}
	go p.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

func (p *Peer) readLoop() {
	defer close(p.frames)
	for {
		_, raw, err := p.Conn.ReadMessage()
		if err != nil {
			p.closed <- err
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			frame = map[string]any{"raw": string(raw)}
		}
		p.frames <- frame
	}
}

// Send writes v as a JSON frame.
func (p *Peer) Send(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, p.Conn.WriteJSON(v))
}

// SendRaw writes data as a text frame.
func (p *Peer) SendRaw(t *testing.T, data []byte) {
	t.Helper()
	require.NoError(t, p.Conn.WriteMessage(websocket.TextMessage, data))
}

// Receive returns the next frame or fails the test.
func (p *Peer) Receive(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame, ok := <-p.frames:
		require.True(t, ok, "connection closed while waiting for a frame")
		return frame
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// ReceiveType skips frames until one of the given type arrives.
func (p *Peer) ReceiveType(t *testing.T, frameType string) map[string]any {
	t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case frame, ok := <-p.frames:
			require.True(t, ok, "connection closed while waiting for %s", frameType)
			if frame["type"] == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", frameType)
			return nil
		}
	}
}

// ExpectNoFrame fails if a frame arrives within wait.
func (p *Peer) ExpectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-p.frames:
		if ok {
			t.Fatalf("unexpected frame: %v", frame)
		}
	case <-time.After(wait):
	}
}

// WaitClosed returns the read error that ended the connection.
func (p *Peer) WaitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-p.closed:
		return err
	case <-time.After(frameTimeout):
		t.Fatal("connection was not closed")
		return nil
	}
}

// Close sends a normal close frame and closes the connection.
func (p *Peer) Close() {
	_ = p.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.Conn.Close()
}
