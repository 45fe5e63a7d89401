// Package server wires HTTP handlers into a ServeMux for the Sketchroom
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.RootHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /rooms", s.ListRoomsHandler)
	mux.HandleFunc("GET /rooms/{roomId}/shapes", s.RoomShapesHandler)
	mux.HandleFunc("GET /rooms/{roomId}/chats", s.RoomChatsHandler)
	return mux
}
