// Package server tracks live connections and the rooms each has joined.
package server

import (
	"sort"
	"sync"
)

type membership struct {
	userID  string
	rooms   map[string]struct{}
	current string
}

// Registry maps every live connection to its identity and joined rooms, and
// indexes rooms back to their connections so fan-out never scans all clients.
// A membership is not revalidated after join, so it may name a room that no
// longer exists in the store.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Client]*membership
	rooms map[string]map[*Client]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Client]*membership),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a connection with no memberships. It returns false if the
// connection is already registered.
func (r *Registry) Register(c *Client, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; ok {
		return false
	}
	r.conns[c] = &membership{userID: userID, rooms: make(map[string]struct{})}
	return true
}

// Unregister removes a connection and every room index entry pointing at it.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[c]
	if !ok {
		return false
	}
	for roomID := range m.rooms {
		r.removeFromRoom(roomID, c)
	}
	delete(r.conns, c)
	return true
}

// Join adds roomID to the connection's memberships and makes it the current
// room. Joining a room twice is a no-op apart from the current room. It
// returns false for unregistered connections.
func (r *Registry) Join(c *Client, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[c]
	if !ok {
		return false
	}
	m.rooms[roomID] = struct{}{}
	m.current = roomID

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}
	return true
}

// Leave drops roomID from the connection's memberships. Leaving a room that
// was never joined is a no-op.
func (r *Registry) Leave(c *Client, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[c]
	if !ok {
		return
	}
	if _, joined := m.rooms[roomID]; !joined {
		return
	}
	delete(m.rooms, roomID)
	if m.current == roomID {
		m.current = ""
	}
	r.removeFromRoom(roomID, c)
}

func (r *Registry) removeFromRoom(roomID string, c *Client) {
	members := r.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// IsMember reports whether the connection has joined roomID.
func (r *Registry) IsMember(c *Client, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][c]
	return ok
}

// Rooms returns the connection's joined rooms in sorted order.
func (r *Registry) Rooms(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.conns[c]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(m.rooms))
	for roomID := range m.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// CurrentRoom returns the room move and delete operations are routed to.
func (r *Registry) CurrentRoom(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.conns[c]
	if !ok || m.current == "" {
		return "", false
	}
	return m.current, true
}

// UserID returns the identity bound to the connection at registration.
func (r *Registry) UserID(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.conns[c]
	if !ok {
		return "", false
	}
	return m.userID, true
}

// MembersOf returns a snapshot of the connections in roomID, without exclude
// when it is non-nil.
func (r *Registry) MembersOf(roomID string, exclude *Client) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for c := range members {
		if c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomSize returns the number of connections in roomID.
func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Clients returns a snapshot of every registered connection.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}
