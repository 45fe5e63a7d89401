// Package server relays chat lines to room peers and records them.
package server

import (
	"context"

	"github.com/Tyrowin/sketchroom/internal/store"
)

// chat delivers the line to the other members of the room before it is
// stored. A delivered line may be missing from history if the write fails.
func (e *Engine) chat(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	if frame.RoomID == "" {
		return effect{}, errValidation("Invalid chat data")
	}

	msg := &store.ChatMessage{
		RoomID:    frame.RoomID,
		Sender:    c.userID,
		Message:   frame.Message,
		CreatedAt: e.now(),
	}

	return effect{
		deliver: func() {
			e.hub.BroadcastJSON(msg.RoomID, newChatFrame(msg.RoomID, msg.Sender, msg.Message, msg.CreatedAt), c)
		},
		commit: func(ctx context.Context) *ProtocolError {
			if err := e.store.CreateChatMessage(ctx, msg); err != nil {
				return errPersistence("Failed to save chat", err)
			}
			return nil
		},
	}, nil
}
