package ws

import (
	"github.com/vendaro/vendaro/pkg/service"
)

// Client -> server events. Each mirrors a REST fallback endpoint and
// shares the same service calls, so both surfaces observe identical
// post-conditions.
const (
	evJoinTicketRoom     = "join_ticket_room"
	evJoinChatSession    = "join_chat_session"
	evSendMessage        = "send_message"
	evSendChatMessage    = "send_chat_message"
	evUpdateTicketStatus = "update_ticket_status"
	evAssignTicket       = "assign_ticket"
	evTypingStart        = "typing_start"
	evTypingStop         = "typing_stop"
)

// Server -> client events.
const (
	evJoinedTicketRoom  = "joined_ticket_room"
	evJoinedChatSession = "joined_chat_session"
	evUserTyping        = "user_typing"
	evUserStoppedTyping = "user_stopped_typing"
)

func strField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// dispatch handles one inbound event. Handlers for a single connection
// run sequentially in arrival order; failures go back to the sender as
// an error event and never tear down the connection.
func (g *Gateway) dispatch(c *Client, ev Envelope) {
	switch ev.Event {
	case evJoinTicketRoom:
		g.handleJoin(c, strField(ev.Data, "ticketId"), service.TicketRoom, evJoinedTicketRoom, "ticketId")

	case evJoinChatSession:
		g.handleJoin(c, strField(ev.Data, "sessionId"), service.SessionRoom, evJoinedChatSession, "sessionId")

	case evSendMessage:
		g.handlePost(c, strField(ev.Data, "ticketId"), strField(ev.Data, "message"))

	case evSendChatMessage:
		g.handlePost(c, strField(ev.Data, "sessionId"), strField(ev.Data, "message"))

	case evUpdateTicketStatus:
		if !c.Caps.CanSetAnyStatus {
			c.sendError("status updates require a staff account")
			return
		}
		if _, err := g.svc.UpdateTicketStatus(c.Identity, strField(ev.Data, "ticketId"), strField(ev.Data, "status")); err != nil {
			c.sendError(err.Error())
		}

	case evAssignTicket:
		if !c.Caps.CanAssign {
			c.sendError("ticket assignment requires a staff account")
			return
		}
		if _, err := g.svc.AssignTicket(strField(ev.Data, "ticketId"), strField(ev.Data, "adminId")); err != nil {
			c.sendError(err.Error())
		}

	case evTypingStart:
		g.handleTyping(c, ev.Data, evUserTyping)

	case evTypingStop:
		g.handleTyping(c, ev.Data, evUserStoppedTyping)

	default:
		c.sendError("unknown event: " + ev.Event)
	}
}

// handleJoin gates joining on a non-empty conversation id only;
// what the caller can see in a room is scoped by the service layer.
func (g *Gateway) handleJoin(c *Client, id string, room func(string) string, ack, idField string) {
	if id == "" {
		c.sendError("missing conversation id")
		return
	}
	g.hub.Join(c, room(id))
	c.sendEvent(ack, map[string]any{idField: id})
}

func (g *Gateway) handlePost(c *Client, id, message string) {
	if id == "" {
		c.sendError("missing conversation id")
		return
	}
	// The service broadcasts message_received to the room on success.
	if _, _, err := g.svc.PostMessage(c.Identity, id, message); err != nil {
		c.sendError(err.Error())
	}
}

// handleTyping relays typing indicators to the rest of the room.
// Nothing is persisted.
func (g *Gateway) handleTyping(c *Client, data map[string]any, event string) {
	var room, idField, id string
	if ticketID := strField(data, "ticketId"); ticketID != "" {
		room, idField, id = service.TicketRoom(ticketID), "ticketId", ticketID
	} else if sessionID := strField(data, "sessionId"); sessionID != "" {
		room, idField, id = service.SessionRoom(sessionID), "sessionId", sessionID
	} else {
		c.sendError("missing conversation id")
		return
	}
	g.hub.BroadcastExcept(room, c, event, map[string]any{
		idField: id,
		"role":  c.Identity.Role,
		"name":  c.Identity.DisplayName,
	})
}
