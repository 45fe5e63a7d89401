package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/sketchroom/internal/store"
)

// newTestClient registers a client without a connection. Its frames are read
// straight from the send channel.
func newTestClient(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(nil, hub, userID, "test-"+userID)
	require.True(t, hub.Registry().Register(c, userID))
	return c
}

func openTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func setupEngine(t *testing.T, st store.Store) (*Engine, *Hub) {
	t.Helper()
	hub := NewHub(*NewConfig())
	engine := NewEngine(st, hub)
	hub.SetFrameHandler(engine)
	return engine, hub
}

func sendFrame(t *testing.T, e *Engine, c *Client, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	e.HandleFrame(context.Background(), c, raw)
}

func readFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.userID)
		return nil
	}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.userID, raw)
	default:
	}
}

var errStoreDown = errors.New("store unavailable")

// failingStore fails every write it is told to fail and passes the rest
// through.
type failingStore struct {
	store.Store
	failChat   bool
	failShapes bool
}

func (f *failingStore) CreateChatMessage(ctx context.Context, msg *store.ChatMessage) error {
	if f.failChat {
		return errStoreDown
	}
	return f.Store.CreateChatMessage(ctx, msg)
}

func (f *failingStore) CreateShape(ctx context.Context, shape *store.Shape) error {
	if f.failShapes {
		return errStoreDown
	}
	return f.Store.CreateShape(ctx, shape)
}

func (f *failingStore) ClearShapes(ctx context.Context, roomID string) (int64, error) {
	if f.failShapes {
		return 0, errStoreDown
	}
	return f.Store.ClearShapes(ctx, roomID)
}
