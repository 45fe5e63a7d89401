package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/sketchroom/internal/store"
	"github.com/Tyrowin/sketchroom/test/testhelpers"
)

// joinAll creates roomID as the first peer and joins the rest.
func joinAll(t *testing.T, roomID string, peers ...*testhelpers.Peer) {
	t.Helper()
	peers[0].Send(t, map[string]any{"type": "create_room", "roomId": roomID})
	require.Equal(t, "room_created", peers[0].Receive(t)["type"])
	for _, p := range peers[1:] {
		p.Send(t, map[string]any{"type": "join_room", "roomId": roomID})
		require.Equal(t, "joined_room", p.Receive(t)["type"])
	}
}

func TestDrawShapeReachesEveryOtherMember(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b, c := env.Dial(t, "a"), env.Dial(t, "b"), env.Dial(t, "c")
	outsider := env.Dial(t, "d")
	joinAll(t, "R1", a, b, c)

	a.Send(t, rect("R1"))

	first := b.Receive(t)["shape"].(map[string]any)["_id"]
	second := c.Receive(t)["shape"].(map[string]any)["_id"]
	assert.Equal(t, first, second)
	b.ExpectNoFrame(t, quiet)
	c.ExpectNoFrame(t, quiet)
	a.ExpectNoFrame(t, quiet)
	outsider.ExpectNoFrame(t, quiet)
}

func TestRepeatedJoinKeepsOneMembership(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)

	for i := 0; i < 3; i++ {
		b.Send(t, map[string]any{"type": "join_room", "roomId": "R1"})
		assert.Equal(t, "joined_room", b.Receive(t)["type"])
	}
	assert.Equal(t, 2, env.Server.Hub().Registry().RoomSize("R1"))

	a.Send(t, map[string]any{"type": "chat", "roomId": "R1", "message": "once"})
	assert.Equal(t, "once", b.Receive(t)["message"])
	b.ExpectNoFrame(t, quiet)
}

func TestMoveShapeLastWriteWins(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)

	a.Send(t, rect("R1"))
	shapeID := b.Receive(t)["shape"].(map[string]any)["_id"].(string)

	positions := [][2]float64{{11, 12}, {100, 200}, {-3, 4.5}}
	for _, pos := range positions {
		a.Send(t, map[string]any{"type": "move_shape", "shapeId": shapeID, "x": pos[0], "y": pos[1]})
	}

	var last map[string]any
	for range positions {
		last = b.ReceiveType(t, "move_shape")
	}
	assert.Equal(t, -3.0, last["x"])
	assert.Equal(t, 4.5, last["y"])

	shapes, err := env.DB.ListShapes(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, -3.0, *shapes[0].X)
	assert.Equal(t, 4.5, *shapes[0].Y)
}

func TestDeleteMissingShapeStillBroadcasts(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)

	a.Send(t, map[string]any{"type": "delete_shape", "shapeId": "ghost"})

	assert.Equal(t, map[string]any{"type": "delete_shape", "shapeId": "ghost"}, b.Receive(t))
	a.ExpectNoFrame(t, quiet)
}

func TestClearCanvasEmptiesHistory(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)

	for i := 0; i < 3; i++ {
		a.Send(t, rect("R1"))
		b.ReceiveType(t, "draw_shape")
	}

	b.Send(t, map[string]any{"type": "clear_canvas", "roomId": "R1"})
	assert.Equal(t, "clear_canvas", a.Receive(t)["type"])
	assert.Equal(t, "clear_canvas", b.Receive(t)["type"])
	a.ExpectNoFrame(t, quiet)
	b.ExpectNoFrame(t, quiet)

	resp := env.Get(t, "/rooms/R1/shapes", env.Token(t, "a", time.Hour))
	assert.Equal(t, 200, resp.StatusCode)
	shapes, err := env.DB.ListShapes(context.Background(), "R1")
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

type failingChatStore struct {
	store.Store
}

func (failingChatStore) CreateChatMessage(context.Context, *store.ChatMessage) error {
	return assert.AnError
}

func TestChatDeliveredWhenPersistenceFails(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{
		Store: func(db *store.GormStore) store.Store { return failingChatStore{Store: db} },
	})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)

	a.Send(t, map[string]any{"type": "chat", "roomId": "R1", "message": "ephemeral"})

	frame := b.Receive(t)
	assert.Equal(t, "chat", frame["type"])
	assert.Equal(t, "ephemeral", frame["message"])
	assert.Equal(t, "a", frame["sender"])
	assert.Equal(t, "R1", frame["roomId"])
	_, err := time.Parse(time.RFC3339Nano, frame["timestamp"].(string))
	assert.NoError(t, err)
	a.ExpectNoFrame(t, quiet)

	require.NoError(t, env.Server.Engine().Wait(time.Second))
	messages, err := env.DB.ListChatMessages(context.Background(), "R1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRoomsAreIsolated(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	c, d := env.Dial(t, "c"), env.Dial(t, "d")
	joinAll(t, "R1", a, b)
	joinAll(t, "R2", c, d)

	a.Send(t, map[string]any{"type": "chat", "roomId": "R1", "message": "r1 only"})
	c.Send(t, map[string]any{"type": "clear_canvas", "roomId": "R2"})

	assert.Equal(t, "r1 only", b.Receive(t)["message"])
	assert.Equal(t, "clear_canvas", d.Receive(t)["type"])
	assert.Equal(t, "clear_canvas", c.Receive(t)["type"])
	a.ExpectNoFrame(t, quiet)
	b.ExpectNoFrame(t, quiet)
	d.ExpectNoFrame(t, quiet)
}

func TestDisconnectRemovesMembership(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	a, b := env.Dial(t, "a"), env.Dial(t, "b")
	joinAll(t, "R1", a, b)
	require.Equal(t, 2, env.Server.Hub().Registry().RoomSize("R1"))

	b.Close()
	env.WaitForClients(t, 1)

	assert.Equal(t, 1, env.Server.Hub().Registry().RoomSize("R1"))
	a.Send(t, map[string]any{"type": "chat", "roomId": "R1", "message": "alone"})
	a.ExpectNoFrame(t, quiet)
}

func TestSameUserOnTwoConnections(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	laptop, phone := env.Dial(t, "a"), env.Dial(t, "a")
	joinAll(t, "R1", laptop, phone)

	laptop.Send(t, map[string]any{"type": "chat", "roomId": "R1", "message": "synced"})

	frame := phone.Receive(t)
	assert.Equal(t, "synced", frame["message"])
	assert.Equal(t, "a", frame["sender"])
	laptop.ExpectNoFrame(t, quiet)
}
