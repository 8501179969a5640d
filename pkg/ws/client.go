package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vendaro/vendaro/pkg/models"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one live authenticated connection. The identity and its
// capability set are bound at handshake time and never change for the
// connection's lifetime.
type Client struct {
	ID       string
	Identity models.Identity
	Caps     models.Capabilities

	hub  *Hub
	conn *websocket.Conn
	send chan Envelope

	// rooms is owned by the hub and guarded by its mutex.
	rooms map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, identity models.Identity) *Client {
	return &Client{
		ID:       uuid.New().String(),
		Identity: identity,
		Caps:     models.DeriveCapabilities(identity),
		hub:      hub,
		conn:     conn,
		send:     make(chan Envelope, sendBufferSize),
		rooms:    make(map[string]struct{}),
	}
}

// enqueue queues an event for delivery, dropping it if the client's
// buffer is full so a slow reader never blocks a broadcast.
func (c *Client) enqueue(ev Envelope) {
	select {
	case c.send <- ev:
	default:
		c.hub.logger.Warn("dropped event, client buffer full", "event", ev.Event, "client", c.ID)
	}
}

// writePump serializes all writes to the connection and keeps it alive
// with periodic pings.
func (c *Client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound events and dispatches them in arrival order.
// It returns when the connection closes; cleanup happens in the caller.
func (c *Client) readPump(g *Gateway) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev Envelope
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		g.dispatch(c, ev)
	}
}

// sendEvent pushes an event to this client only.
func (c *Client) sendEvent(event string, data map[string]any) {
	c.enqueue(envelope(event, data))
}

// sendError reports a per-event failure back to the originating
// connection. Errors are never broadcast and never tear the
// connection down.
func (c *Client) sendError(message string) {
	c.sendEvent("error", map[string]any{"message": message})
}
