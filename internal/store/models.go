package store

import "time"

// DefaultShapeColor is applied when a shape is drawn without a colour.
const DefaultShapeColor = "white"

// ShapeType enumerates the drawable primitives a room may contain.
type ShapeType string

// Recognised shape types.
const (
	ShapeRect     ShapeType = "rect"
	ShapeCircle   ShapeType = "circle"
	ShapeSquare   ShapeType = "square"
	ShapeTriangle ShapeType = "triangle"
	ShapeArrow    ShapeType = "arrow"
	ShapeText     ShapeType = "text"
)

// ParseShapeType maps a client-supplied type name onto a ShapeType.
// "rectangle" is accepted as a long form of "rect".
func ParseShapeType(name string) (ShapeType, bool) {
	switch ShapeType(name) {
	case ShapeRect, ShapeCircle, ShapeSquare, ShapeTriangle, ShapeArrow, ShapeText:
		return ShapeType(name), true
	case "rectangle":
		return ShapeRect, true
	}
	return "", false
}

// Room is a named collaboration namespace. Rooms are never mutated after
// creation.
type Room struct {
	RoomID    string    `gorm:"primaryKey;size:128" json:"roomId"`
	CreatedBy string    `gorm:"size:64;index" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string {
	return "rooms"
}

// Shape is a persisted drawable primitive. Only X and Y change after
// creation, through a move.
type Shape struct {
	ID        string    `gorm:"primaryKey;size:36" json:"_id"`
	RoomID    string    `gorm:"size:128;not null;index:idx_shapes_room_created,priority:1" json:"roomId"`
	Type      ShapeType `gorm:"size:16;not null" json:"type"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	Width     *float64  `json:"width,omitempty"`
	Height    *float64  `json:"height,omitempty"`
	Text      *string   `json:"text,omitempty"`
	Color     string    `gorm:"size:32;not null;default:white" json:"color"`
	CreatedAt time.Time `gorm:"index:idx_shapes_room_created,priority:2" json:"createdAt"`
}

// TableName returns the table name for Shape model.
func (Shape) TableName() string {
	return "shapes"
}

// ChatMessage is an immutable chat line recorded for a room.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"_id"`
	RoomID    string    `gorm:"size:128;not null;index:idx_chats_room_created,priority:1" json:"roomId"`
	Sender    string    `gorm:"size:64;not null" json:"sender"`
	Message   string    `gorm:"not null" json:"message"`
	CreatedAt time.Time `gorm:"index:idx_chats_room_created,priority:2" json:"createdAt"`
}

// TableName returns the table name for ChatMessage model.
func (ChatMessage) TableName() string {
	return "chat_messages"
}
