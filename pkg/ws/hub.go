// Package ws is the real-time surface: it authenticates websocket
// connections, tracks room membership and fans events out to rooms.
package ws

import (
	"log/slog"
	"sync"
	"time"
)

// Envelope is the JSON message exchanged over a websocket connection.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	TS    int64          `json:"ts"`
}

func envelope(event string, data map[string]any) Envelope {
	return Envelope{Event: event, Data: data, TS: time.Now().UnixMilli()}
}

// Hub owns room membership. Membership lives only in process memory and
// is rebuilt from nothing after a restart; clients simply re-join.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Join adds the client to a room. Joining a room twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes the client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// RemoveClient drops the client from every room it joined. Called on
// disconnect.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// RoomSize returns the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends an event to every connection currently in a room.
// Sends are fire-and-forget: a slow recipient has its event dropped
// rather than blocking the sender.
func (h *Hub) Broadcast(room, event string, data map[string]any) {
	h.broadcast(room, nil, event, data)
}

// BroadcastExcept sends an event to every room member except one,
// typically the originator of the event.
func (h *Hub) BroadcastExcept(room string, except *Client, event string, data map[string]any) {
	h.broadcast(room, except, event, data)
}

func (h *Hub) broadcast(room string, except *Client, event string, data map[string]any) {
	ev := envelope(event, data)

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(ev)
	}
}
