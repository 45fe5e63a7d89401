package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements Store with GORM.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema. Use ":memory:" for a throwaway database.
func Open(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	return New(db)
}

// New wraps an already opened GORM handle and migrates the schema.
func New(db *gorm.DB) (*GormStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// sqlite allows a single writer, and every ":memory:" connection is its
	// own database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Room{}, &Shape{}, &ChatMessage{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateRoom inserts a room, failing with ErrConflict if the id is taken.
func (s *GormStore) CreateRoom(ctx context.Context, room *Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Room{}).Where("room_id = ?", room.RoomID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(room).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return fmt.Errorf("failed to create room: %w", err)
	}
}

// GetRoom retrieves a room by its id.
func (s *GormStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := s.db.WithContext(ctx).First(&room, "room_id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// RoomExists reports whether a room with the id has been created.
func (s *GormStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Room{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up room: %w", err)
	}
	return count > 0, nil
}

// ListRooms returns every room, oldest first.
func (s *GormStore) ListRooms(ctx context.Context) ([]Room, error) {
	rooms := make([]Room, 0)
	if err := s.db.WithContext(ctx).Order("created_at ASC, rowid ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// CreateShape saves a new shape into an existing room.
func (s *GormStore) CreateShape(ctx context.Context, shape *Shape) error {
	if shape.ID == "" {
		shape.ID = uuid.New().String()
	}
	if shape.CreatedAt.IsZero() {
		shape.CreatedAt = time.Now()
	}
	if shape.Color == "" {
		shape.Color = DefaultShapeColor
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRoom(tx, shape.RoomID); err != nil {
			return err
		}
		return tx.Create(shape).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create shape: %w", err)
	}
	return nil
}

// MoveShape updates a shape's position. The last write wins.
func (s *GormStore) MoveShape(ctx context.Context, shapeID string, x, y float64) error {
	result := s.db.WithContext(ctx).Model(&Shape{}).
		Where("id = ?", shapeID).
		Updates(map[string]any{"x": x, "y": y})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to move shape: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteShape removes a shape by id. A missing id is not an error.
func (s *GormStore) DeleteShape(ctx context.Context, shapeID string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Shape{}, "id = ?", shapeID)
	if err := result.Error; err != nil {
		return false, fmt.Errorf("failed to delete shape: %w", err)
	}
	return result.RowsAffected > 0, nil
}

// ClearShapes deletes all shapes of a room.
func (s *GormStore) ClearShapes(ctx context.Context, roomID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&Shape{})
	if err := result.Error; err != nil {
		return 0, fmt.Errorf("failed to clear shapes: %w", err)
	}
	return result.RowsAffected, nil
}

// ListShapes returns the shapes of a room, oldest first.
func (s *GormStore) ListShapes(ctx context.Context, roomID string) ([]Shape, error) {
	shapes := make([]Shape, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, rowid ASC").
		Find(&shapes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shapes: %w", err)
	}
	return shapes, nil
}

// CreateChatMessage records a chat line for an existing room.
func (s *GormStore) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRoom(tx, msg.RoomID); err != nil {
			return err
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the chat history of a room, oldest first.
func (s *GormStore) ListChatMessages(ctx context.Context, roomID string) ([]ChatMessage, error) {
	messages := make([]ChatMessage, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, rowid ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	return messages, nil
}

// Close releases the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func requireRoom(tx *gorm.DB, roomID string) error {
	var count int64
	if err := tx.Model(&Room{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
