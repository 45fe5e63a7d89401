package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a room or shape does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a room id is already taken.
	ErrConflict = errors.New("record already exists")
)

// Store is the durable storage the real-time engine depends on.
//
// All list operations return records ascending by creation time.
type Store interface {
	// CreateRoom inserts a room. It returns ErrConflict when the id exists.
	CreateRoom(ctx context.Context, room *Room) error
	// GetRoom returns ErrNotFound for unknown ids.
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	ListRooms(ctx context.Context) ([]Room, error)

	// CreateShape assigns an id and creation time when they are empty and
	// returns ErrNotFound when the shape's room does not exist.
	CreateShape(ctx context.Context, shape *Shape) error
	// MoveShape overwrites a shape's position and returns ErrNotFound when
	// no shape has the id.
	MoveShape(ctx context.Context, shapeID string, x, y float64) error
	// DeleteShape reports whether a shape was removed.
	DeleteShape(ctx context.Context, shapeID string) (bool, error)
	// ClearShapes removes every shape of a room and returns how many went.
	ClearShapes(ctx context.Context, roomID string) (int64, error)
	ListShapes(ctx context.Context, roomID string) ([]Shape, error)

	// CreateChatMessage returns ErrNotFound when the room does not exist.
	CreateChatMessage(ctx context.Context, msg *ChatMessage) error
	ListChatMessages(ctx context.Context, roomID string) ([]ChatMessage, error)

	Close() error
}
