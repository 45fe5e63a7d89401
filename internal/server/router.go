// Package server fans room payloads out to member connections.
package server

import (
	"encoding/json"
	"log"
)

// Broadcast queues payload on every member of roomID except exclude and
// returns the number of connections it was queued on. Delivery is at most
// once: a closed or full connection misses the payload and is left
// connected. Broadcasts are serialized so every member of a room queues them
// in the same order.
func (h *Hub) Broadcast(roomID string, payload []byte, exclude *Client) int {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	delivered := 0
	for _, member := range h.registry.MembersOf(roomID, exclude) {
		if member.trySend(payload) {
			delivered++
			continue
		}
		log.Printf("Dropped broadcast in room %s for %s (user %s): send buffer full or closed", roomID, member.addr, member.userID)
	}
	return delivered
}

// BroadcastJSON encodes v and broadcasts it to roomID.
func (h *Hub) BroadcastJSON(roomID string, v any, exclude *Client) int {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error encoding broadcast for room %s: %v", roomID, err)
		return 0
	}
	return h.Broadcast(roomID, payload, exclude)
}
