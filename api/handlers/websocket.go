package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chat-gateway/backend/internal/session"
	"github.com/chat-gateway/backend/internal/ws"
)

// WebSocketHandler handles WebSocket upgrade requests for event
// subscriptions.
type WebSocketHandler struct {
	registry    *session.Registry
	broadcaster *ws.Broadcaster
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(registry *session.Registry, broadcaster *ws.Broadcaster) *WebSocketHandler {
	return &WebSocketHandler{
		registry:    registry,
		broadcaster: broadcaster,
	}
}

// RegisterRoutes registers WebSocket routes on the router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/:id", h.Subscribe)
}

// Subscribe handles GET /api/ws/:id - upgrades the connection and
// subscribes it to the named session, or to every session when the
// path segment is the wildcard "all".
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	identity := c.Param("id")

	if identity != ws.Wildcard {
		if _, err := h.registry.Get(identity); err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "SESSION_NOT_FOUND",
					Message: "Session " + identity + " not found",
				},
			})
			return
		}
	}

	if err := h.broadcaster.HandleConnection(c.Writer, c.Request, identity); err != nil {
		log.Printf("websocket upgrade failed for %q: %v", identity, err)
	}
}
