// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and read-only room history.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/store"
)

// WebSocketHandler upgrades the request, admits its bearer token, and hands the
// connection to the hub. A rejected token gets one error frame and a close
// before the connection is registered.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	identity, err := s.gate.Admit(auth.TokenFromRequest(r))
	if err != nil {
		log.Printf("Rejected WebSocket connection from %s: %v", r.RemoteAddr, err)
		rejectConnection(conn, errAuth(err))
		return
	}

	// The room hint is informational; membership needs an explicit join.
	if hint := r.URL.Query().Get("roomId"); hint != "" {
		log.Printf("User %s connected from %s with room hint %q", identity.UserID, r.RemoteAddr, hint)
	}

	client := NewClient(conn, s.hub, identity.UserID, r.RemoteAddr)
	client.expiresAt = identity.ExpiresAt

	if !s.hub.Register(client) {
		log.Printf("Hub is shutting down; closing connection from %s", r.RemoteAddr)
		rejectConnection(conn, newProtocolError(KindAuth, "Server is shutting down", nil))
	}
}

func rejectConnection(conn *websocket.Conn, perr *ProtocolError) {
	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(errorFrame{Error: perr.Message}); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing rejection to %s: %v", conn.RemoteAddr(), err)
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, perr.Message)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing rejected connection: %v", err)
	}
}

// RootHandler serves WebSocket upgrades at the root path, where the browser
// canvas client dials, and the plain text health line otherwise.
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.WebSocketHandler(w, r)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Sketchroom server is running!")
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// HealthHandler reports liveness with connection and active room counts.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Connections: s.hub.ClientCount(),
		Rooms:       s.hub.RoomCount(),
	})
}

// ListRoomsHandler returns every room, oldest first.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.authenticate(w, r) {
		return
	}
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		log.Printf("Error listing rooms: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// RoomShapesHandler returns the persisted shapes of a room, oldest first.
func (s *Server) RoomShapesHandler(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.historyRoom(w, r)
	if !ok {
		return
	}
	shapes, err := s.store.ListShapes(r.Context(), roomID)
	if err != nil {
		log.Printf("Error listing shapes for room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch shapes")
		return
	}
	writeJSON(w, http.StatusOK, shapes)
}

// RoomChatsHandler returns the persisted chat of a room, oldest first.
func (s *Server) RoomChatsHandler(w http.ResponseWriter, r *http.Request) {
	roomID, ok := s.historyRoom(w, r)
	if !ok {
		return
	}
	messages, err := s.store.ListChatMessages(r.Context(), roomID)
	if err != nil {
		log.Printf("Error listing chat for room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chats")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// historyRoom authenticates the request and resolves its {roomId}.
func (s *Server) historyRoom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.authenticate(w, r) {
		return "", false
	}
	roomID := r.PathValue("roomId")
	if _, err := s.store.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Room not found")
			return "", false
		}
		log.Printf("Error looking up room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch room")
		return "", false
	}
	return roomID, true
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) bool {
	if _, err := s.gate.Admit(auth.TokenFromRequest(r)); err != nil {
		writeError(w, http.StatusUnauthorized, errAuth(err).Message)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorFrame{Error: message})
}
