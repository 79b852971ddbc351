package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/session"
	"github.com/zetxtech/websole/internal/ws"
)

// WebSocketHandler attaches WebSocket connections to the shared session.
type WebSocketHandler struct {
	hub       *session.Hub
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *session.Hub, wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		wsHandler: wsHandler,
	}
}

// Attach handles WS /pty - attaches a terminal client to the session.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if h.hub.Status().State == model.SessionStateClosed {
		sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down")
		return
	}
	h.wsHandler.ServeHTTP(c.Writer, c.Request)
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(rg gin.IRoutes) {
	rg.GET("/pty", h.Attach)
}
