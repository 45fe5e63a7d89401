package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubShutdownWithoutClients(t *testing.T) {
	hub := NewHub(*NewConfig())
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
	assert.ErrorIs(t, hub.Context().Err(), context.Canceled)
	assert.False(t, hub.Register(NewClient(nil, hub, "late", "addr")), "no registrations after shutdown")
}

func TestHubUnregisterAfterShutdown(t *testing.T) {
	hub := NewHub(*NewConfig())
	c := newTestClient(t, hub, "a")
	hub.Registry().Join(c, "R1")
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	hub.Unregister(c)

	assert.Zero(t, hub.ClientCount())
	assert.Zero(t, hub.RoomCount())
	assert.True(t, c.isClosed())
}

func TestHubUnregisterThroughRun(t *testing.T) {
	hub := NewHub(*NewConfig())
	c := newTestClient(t, hub, "a")
	hub.Registry().Join(c, "R1")
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	hub.Unregister(c)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.isClosed())
	assert.Empty(t, hub.Registry().MembersOf("R1", nil))
}

func TestHubShutdownClosesRegisteredClients(t *testing.T) {
	hub := NewHub(*NewConfig())
	clients := []*Client{newTestClient(t, hub, "a"), newTestClient(t, hub, "b")}
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))

	for _, c := range clients {
		assert.True(t, c.isClosed())
	}
	assert.Zero(t, hub.ClientCount())
}
