package ws

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vendaro/vendaro/pkg/auth"
	"github.com/vendaro/vendaro/pkg/service"
)

// Gateway authenticates new websocket connections and runs their event
// loops. A connection that fails authentication is refused before any
// event is processed.
type Gateway struct {
	hub      *Hub
	resolver *auth.Resolver
	svc      *service.SupportService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGateway creates a websocket gateway.
func NewGateway(hub *Hub, resolver *auth.Resolver, svc *service.SupportService, logger *slog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		resolver: resolver,
		svc:      svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle is the gin handler for websocket connections. The credential
// comes from the token query parameter, falling back to a bearer
// header. The handler blocks until the connection closes.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.Request)
	}

	identity, err := g.resolver.Resolve(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := newClient(g.hub, conn, identity)

	// Private room for direct server-to-client pushes.
	g.hub.Join(client, service.SelfRoom(identity.AccountID))
	g.logger.Debug("connection established", "client", client.ID, "role", identity.Role, "account", identity.AccountID)

	done := make(chan struct{})
	go client.writePump(done)

	client.readPump(g)

	close(done)
	g.hub.RemoveClient(client)
	g.logger.Debug("connection closed", "client", client.ID)
}
