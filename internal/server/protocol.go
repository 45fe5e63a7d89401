// Package server defines the JSON frames exchanged over a room connection.
package server

import (
	"encoding/json"
	"time"

	"github.com/Tyrowin/sketchroom/internal/store"
)

// Frame types shared by both directions.
const (
	TypeDrawShape   = "draw_shape"
	TypeMoveShape   = "move_shape"
	TypeDeleteShape = "delete_shape"
	TypeClearCanvas = "clear_canvas"
	TypeChat        = "chat"
)

// Client to server frame types.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
)

// Server to client confirmation types.
const (
	TypeRoomCreated = "room_created"
	TypeJoinedRoom  = "joined_room"
	TypeLeftRoom    = "left_room"
)

// InboundFrame is the union of every field a client frame may carry. The
// Type field selects which of the others are meaningful.
type InboundFrame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Shape   json.RawMessage `json:"shape,omitempty"`
	ShapeID string          `json:"shapeId,omitempty"`
	X       json.RawMessage `json:"x,omitempty"`
	Y       json.RawMessage `json:"y,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ShapeInput is the client supplied part of a draw_shape frame.
type ShapeInput struct {
	Type   string   `json:"type"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Text   *string  `json:"text,omitempty"`
	Color  string   `json:"color,omitempty"`
}

// parseShape decodes and validates the shape of a draw_shape frame.
func parseShape(raw json.RawMessage, roomID string) (*store.Shape, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}

	var in ShapeInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, false
	}

	shapeType, ok := store.ParseShapeType(in.Type)
	if !ok {
		return nil, false
	}

	return &store.Shape{
		RoomID: roomID,
		Type:   shapeType,
		X:      in.X,
		Y:      in.Y,
		Width:  in.Width,
		Height: in.Height,
		Text:   in.Text,
		Color:  in.Color,
	}, true
}

// parseCoordinate accepts only JSON numbers; null counts as missing.
func parseCoordinate(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

type roomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type shapeFrame struct {
	Type  string       `json:"type"`
	Shape *store.Shape `json:"shape"`
}

type moveFrame struct {
	Type    string  `json:"type"`
	ShapeID string  `json:"shapeId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type deleteFrame struct {
	Type    string `json:"type"`
	ShapeID string `json:"shapeId"`
}

type clearFrame struct {
	Type string `json:"type"`
}

type chatFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RoomID    string `json:"roomId"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

func newChatFrame(roomID, sender, message string, at time.Time) chatFrame {
	return chatFrame{
		Type:      TypeChat,
		Message:   message,
		RoomID:    roomID,
		Sender:    sender,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

type errorFrame struct {
	Error string `json:"error"`
}
