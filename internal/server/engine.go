// Package server dispatches room, shape, and chat frames against the store
// and the room router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/sketchroom/internal/store"
)

type operation struct {
	policy PersistPolicy
	handle func(ctx context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError)
}

// Engine executes client frames. It implements FrameHandler.
type Engine struct {
	store      store.Store
	hub        *Hub
	ops        map[string]operation
	background sync.WaitGroup
	now        func() time.Time
}

var _ FrameHandler = (*Engine)(nil)

// NewEngine creates an Engine persisting to st and broadcasting through hub.
func NewEngine(st store.Store, hub *Hub) *Engine {
	e := &Engine{
		store: st,
		hub:   hub,
		now:   time.Now,
	}
	e.ops = map[string]operation{
		TypeCreateRoom:  {DurableConfirmed, e.createRoom},
		TypeJoinRoom:    {DurableConfirmed, e.joinRoom},
		TypeLeaveRoom:   {DurableConfirmed, e.leaveRoom},
		TypeDrawShape:   {DurableConfirmed, e.drawShape},
		TypeMoveShape:   {DurableConfirmed, e.moveShape},
		TypeDeleteShape: {DurableConfirmed, e.deleteShape},
		TypeClearCanvas: {DurableConfirmed, e.clearCanvas},
		TypeChat:        {OptimisticFireAndForget, e.chat},
	}
	return e
}

// Policy returns the persist policy of a frame type.
func (e *Engine) Policy(frameType string) (PersistPolicy, bool) {
	op, ok := e.ops[frameType]
	return op.policy, ok
}

// HandleFrame decodes raw and executes it. Failures are reported to c as an
// error frame; none of them close the connection.
func (e *Engine) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			e.reject(c, frame.Type, errValidation("Invalid field "+typeErr.Field))
			return
		}
		e.reject(c, "", errInvalidFrame(err))
		return
	}

	op, ok := e.ops[frame.Type]
	if !ok {
		e.reject(c, frame.Type, errValidation("Unknown message type"))
		return
	}

	eff, perr := op.handle(ctx, c, &frame)
	if perr == nil {
		perr = e.apply(ctx, c, frame.Type, op.policy, eff)
	}
	if perr != nil {
		e.reject(c, frame.Type, perr)
	}
}

func (e *Engine) reject(c *Client, frameType string, perr *ProtocolError) {
	log.Printf("Rejected %q frame from %s (user %s): %v", frameType, c.addr, c.userID, perr)
	c.sendError(perr)
}

// Wait blocks until background persistence has finished or timeout elapses.
func (e *Engine) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func (e *Engine) createRoom(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	roomID := frame.RoomID
	if roomID == "" {
		return effect{}, errValidation("Invalid room id")
	}

	return effect{
		commit: func(ctx context.Context) *ProtocolError {
			err := e.store.CreateRoom(ctx, &store.Room{RoomID: roomID, CreatedBy: c.userID})
			if err != nil {
				return storeError(err, "", "Failed to create room")
			}
			log.Printf("Room %s created by user %s", roomID, c.userID)
			return nil
		},
		deliver: func() {
			e.hub.registry.Join(c, roomID)
			c.sendJSON(roomFrame{Type: TypeRoomCreated, RoomID: roomID})
		},
	}, nil
}

func (e *Engine) joinRoom(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	roomID := frame.RoomID
	if roomID == "" {
		return effect{}, errValidation("Invalid room id")
	}

	eff := effect{
		deliver: func() {
			e.hub.registry.Join(c, roomID)
			c.sendJSON(roomFrame{Type: TypeJoinedRoom, RoomID: roomID})
		},
	}
	if e.hub.registry.IsMember(c, roomID) {
		return eff, nil
	}

	eff.commit = func(ctx context.Context) *ProtocolError {
		exists, err := e.store.RoomExists(ctx, roomID)
		if err != nil {
			return errPersistence("Failed to join room", err)
		}
		if !exists {
			return errNotFound("Room does not exist")
		}
		return nil
	}
	return eff, nil
}

func (e *Engine) leaveRoom(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	roomID := frame.RoomID
	return effect{
		deliver: func() {
			e.hub.registry.Leave(c, roomID)
			c.sendJSON(roomFrame{Type: TypeLeftRoom, RoomID: roomID})
			log.Printf("User %s left room %s", c.userID, roomID)
		},
	}, nil
}

func (e *Engine) drawShape(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	if frame.RoomID == "" {
		return effect{}, errValidation("Invalid shape data")
	}
	shape, ok := parseShape(frame.Shape, frame.RoomID)
	if !ok {
		return effect{}, errValidation("Invalid shape data")
	}

	return effect{
		commit: func(ctx context.Context) *ProtocolError {
			if err := e.store.CreateShape(ctx, shape); err != nil {
				return storeError(err, "Room does not exist", "Failed to save shape")
			}
			return nil
		},
		deliver: func() {
			n := e.hub.BroadcastJSON(shape.RoomID, shapeFrame{Type: TypeDrawShape, Shape: shape}, c)
			log.Printf("Shape %s saved by user %s in room %s; sent to %d peers", shape.ID, c.userID, shape.RoomID, n)
		},
	}, nil
}

func (e *Engine) moveShape(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	x, okX := parseCoordinate(frame.X)
	y, okY := parseCoordinate(frame.Y)
	if frame.ShapeID == "" || !okX || !okY {
		return effect{}, errValidation("Invalid shape move data")
	}
	shapeID := frame.ShapeID

	return effect{
		commit: func(ctx context.Context) *ProtocolError {
			if err := e.store.MoveShape(ctx, shapeID, x, y); err != nil {
				return storeError(err, "Shape not found", "Failed to move shape")
			}
			return nil
		},
		deliver: func() {
			e.broadcastToCurrentRoom(c, moveFrame{Type: TypeMoveShape, ShapeID: shapeID, X: x, Y: y})
		},
	}, nil
}

func (e *Engine) deleteShape(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	if frame.ShapeID == "" {
		return effect{}, errValidation("Invalid shape delete data")
	}
	shapeID := frame.ShapeID

	return effect{
		commit: func(ctx context.Context) *ProtocolError {
			deleted, err := e.store.DeleteShape(ctx, shapeID)
			if err != nil {
				return errPersistence("Failed to delete shape", err)
			}
			if !deleted {
				log.Printf("Shape %s deleted by user %s did not exist", shapeID, c.userID)
			}
			return nil
		},
		deliver: func() {
			e.broadcastToCurrentRoom(c, deleteFrame{Type: TypeDeleteShape, ShapeID: shapeID})
		},
	}, nil
}

func (e *Engine) clearCanvas(_ context.Context, c *Client, frame *InboundFrame) (effect, *ProtocolError) {
	roomID := frame.RoomID
	if roomID == "" {
		return effect{}, errValidation("Invalid room id")
	}

	return effect{
		commit: func(ctx context.Context) *ProtocolError {
			n, err := e.store.ClearShapes(ctx, roomID)
			if err != nil {
				return errPersistence("Failed to clear canvas", err)
			}
			log.Printf("Cleared %d shapes in room %s for user %s", n, roomID, c.userID)
			return nil
		},
		deliver: func() {
			payload, err := json.Marshal(clearFrame{Type: TypeClearCanvas})
			if err != nil {
				log.Printf("Error encoding clear_canvas for room %s: %v", roomID, err)
				return
			}
			e.hub.Broadcast(roomID, payload, nil)
			// The issuer is confirmed even when it is not a member.
			if !e.hub.registry.IsMember(c, roomID) {
				c.trySend(payload)
			}
		},
	}, nil
}

// broadcastToCurrentRoom sends v to the other members of the room c last
// joined. Nothing is sent when c has no current room.
func (e *Engine) broadcastToCurrentRoom(c *Client, v any) {
	roomID, ok := e.hub.registry.CurrentRoom(c)
	if !ok {
		log.Printf("User %s from %s has no current room; broadcast skipped", c.userID, c.addr)
		return
	}
	e.hub.BroadcastJSON(roomID, v, c)
}
