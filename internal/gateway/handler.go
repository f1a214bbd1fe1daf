package gateway

import (
	"net/http"
	"time"

	"dialdesk/internal/auth"
	"dialdesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients are served from a separate origin; access control is
	// the bearer credential checked before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades authenticated requests onto the hub.
type Handler struct {
	Hub  *Hub
	Auth *auth.Manager
}

// Serve validates the bearer credential and, on success, joins the connection
// to the agent's channel. Invalid credentials are rejected before any upgrade
// happens.
func (h Handler) Serve(c *gin.Context) {
	log := logger.FromGin(c)

	tok := auth.BearerToken(c)
	if tok == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	claims, err := h.Auth.Verify(tok, auth.TokenTypeAccess, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn("websocket upgrade failed", "agent_id", claims.AgentID, "err", err)
		return
	}

	client := newClient(h.Hub, conn, claims.AgentID, claims.Name, log)
	h.Hub.Register(client)

	go client.writePump()
	go client.readPump()
}
