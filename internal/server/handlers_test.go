package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/store"
)

const handlerSecret = "handler-secret"

func setupServer(t *testing.T) (*Server, *store.GormStore, http.Handler) {
	t.Helper()
	st := openTestStore(t)
	srv := New(NewConfig(), st, auth.NewGate(handlerSecret))
	return srv, st, srv.SetupRoutes()
}

func bearer(t *testing.T, uid string) string {
	t.Helper()
	token, err := auth.NewGate(handlerSecret).Issue(uid, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(handler http.Handler, method, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRootHandler(t *testing.T) {
	_, _, handler := setupServer(t)

	rec := serve(handler, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Sketchroom server is running!", rec.Body.String())

	rec = serve(handler, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	srv, _, handler := setupServer(t)
	c := newTestClient(t, srv.Hub(), "a")
	srv.Hub().Registry().Join(c, "R1")

	rec := serve(handler, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthResponse{Status: "healthy", Connections: 1, Rooms: 1}, body)
}

func TestWebSocketHandlerMethodValidation(t *testing.T) {
	_, _, handler := setupServer(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := serve(handler, method, "/ws", "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestWebSocketHandlerWithoutUpgrade(t *testing.T) {
	_, _, handler := setupServer(t)

	rec := serve(handler, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRequiresToken(t *testing.T) {
	_, _, handler := setupServer(t)

	tests := []struct {
		name          string
		authorization string
		want          string
	}{
		{"missing", "", "Missing token"},
		{"garbage", "Bearer nope", "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range []string{"/rooms", "/rooms/R1/shapes", "/rooms/R1/chats"} {
				rec := serve(handler, http.MethodGet, target, tt.authorization)
				assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
				assert.JSONEq(t, `{"error":"`+tt.want+`"}`, rec.Body.String(), target)
			}
		})
	}
}

func TestHistoryUnknownRoom(t *testing.T) {
	_, _, handler := setupServer(t)
	token := bearer(t, "a")

	for _, target := range []string{"/rooms/missing/shapes", "/rooms/missing/chats"} {
		rec := serve(handler, http.MethodGet, target, token)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.JSONEq(t, `{"error":"Room not found"}`, rec.Body.String(), target)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	_, st, handler := setupServer(t)
	ctx := context.Background()
	token := bearer(t, "a")
	base := time.Now()

	require.NoError(t, st.CreateRoom(ctx, &store.Room{RoomID: "R1", CreatedBy: "a", CreatedAt: base}))
	require.NoError(t, st.CreateRoom(ctx, &store.Room{RoomID: "R2", CreatedBy: "b", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, st.CreateShape(ctx, &store.Shape{RoomID: "R1", Type: store.ShapeRect, CreatedAt: base}))
	require.NoError(t, st.CreateShape(ctx, &store.Shape{RoomID: "R1", Type: store.ShapeText, CreatedAt: base.Add(time.Millisecond)}))
	require.NoError(t, st.CreateChatMessage(ctx, &store.ChatMessage{RoomID: "R1", Sender: "a", Message: "hi"}))

	t.Run("rooms", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/rooms", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var rooms []store.Room
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
		require.Len(t, rooms, 2)
		assert.Equal(t, "R1", rooms[0].RoomID)
		assert.Equal(t, "R2", rooms[1].RoomID)
	})

	t.Run("shapes", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/rooms/R1/shapes", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var shapes []store.Shape
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shapes))
		require.Len(t, shapes, 2)
		assert.Equal(t, store.ShapeRect, shapes[0].Type)
		assert.Equal(t, store.ShapeText, shapes[1].Type)
		assert.NotEmpty(t, shapes[0].ID)
	})

	t.Run("chats", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/rooms/R1/chats", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var messages []store.ChatMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
		require.Len(t, messages, 1)
		assert.Equal(t, "hi", messages[0].Message)
	})

	t.Run("empty room lists as empty array", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/rooms/R2/shapes", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}

func TestCreateServer(t *testing.T) {
	srv := CreateServer(":0", http.NewServeMux())

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestServerShutdownWaitsForBackgroundWrites(t *testing.T) {
	srv, st, _ := setupServer(t)
	srv.StartHub()
	require.NoError(t, st.CreateRoom(context.Background(), &store.Room{RoomID: "R1"}))
	c := newTestClient(t, srv.Hub(), "a")

	sendFrame(t, srv.Engine(), c, map[string]any{"type": TypeChat, "roomId": "R1", "message": "bye"})
	require.NoError(t, srv.Shutdown(time.Second))

	messages, err := st.ListChatMessages(context.Background(), "R1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
