// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chat-gateway/backend/internal/model"
	"github.com/chat-gateway/backend/internal/session"
	"github.com/chat-gateway/backend/internal/ws"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	registry    *session.Registry
	broadcaster *ws.Broadcaster
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *session.Registry, broadcaster *ws.Broadcaster) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		broadcaster: broadcaster,
	}
}

// StartSessionRequest represents the request body for starting a session.
type StartSessionRequest struct {
	ReadyTimeout string `json:"readyTimeout"`
}

// InvokeRequest represents the request body for a domain operation.
type InvokeRequest struct {
	Op   string                 `json:"op" binding:"required"`
	Args map[string]interface{} `json:"args"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	Identity     string `json:"identity"`
	State        string `json:"state"`
	Subscribers  int    `json:"subscribers"`
	CreatedAt    string `json:"createdAt"`
	LastActivity string `json:"lastActivity"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RegisterRoutes registers session routes on the router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
	rg.POST("/sessions/:id/start", h.Start)
	rg.POST("/sessions/:id/stop", h.Stop)
	rg.POST("/sessions/:id/invoke", h.Invoke)
	rg.DELETE("/sessions/:id", h.Terminate)
}

func (h *SessionHandler) toResponse(info model.SessionInfo) *SessionResponse {
	return &SessionResponse{
		Identity:     info.Identity,
		State:        string(info.State),
		Subscribers:  h.broadcaster.SubscriberCount(info.Identity),
		CreatedAt:    info.CreatedAt.Format(time.RFC3339),
		LastActivity: info.LastActivity.Format(time.RFC3339),
	}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Start handles POST /api/sessions/:id/start. Starting a session that
// is already running is treated as success, not as a duplicate error.
func (h *SessionHandler) Start(c *gin.Context) {
	identity := c.Param("id")

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	var cfg model.SessionConfig
	if req.ReadyTimeout != "" {
		d, err := time.ParseDuration(req.ReadyTimeout)
		if err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid readyTimeout: "+err.Error())
			return
		}
		cfg.ReadyTimeout = d
	}

	s, err := h.registry.Create(c.Request.Context(), identity, cfg)
	if err != nil {
		if errors.Is(err, model.ErrSessionExists) {
			existing, getErr := h.registry.Get(identity)
			if getErr == nil {
				c.JSON(http.StatusOK, h.toResponse(existing.Info()))
				return
			}
		}
		if errors.Is(err, model.ErrIdentityRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(s.Info()))
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	infos := h.registry.List()

	response := make([]*SessionResponse, len(infos))
	for i, info := range infos {
		response[i] = h.toResponse(info)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	identity := c.Param("id")

	s, err := h.registry.Get(identity)
	if err != nil {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+identity+" not found")
		return
	}

	c.JSON(http.StatusOK, h.toResponse(s.Info()))
}

// Stop handles POST /api/sessions/:id/stop. The in-memory session is
// torn down but the persisted state survives for later recovery.
func (h *SessionHandler) Stop(c *gin.Context) {
	identity := c.Param("id")

	if err := h.registry.Remove(c.Request.Context(), identity, false); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to stop session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": identity, "stopped": true})
}

// Terminate handles DELETE /api/sessions/:id. The session and its
// persisted state are both removed.
func (h *SessionHandler) Terminate(c *gin.Context) {
	identity := c.Param("id")

	if err := h.registry.Remove(c.Request.Context(), identity, true); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to terminate session: "+err.Error())
		return
	}
	h.broadcaster.DropHistory(identity)

	c.JSON(http.StatusOK, gin.H{"identity": identity, "terminated": true})
}

// Invoke handles POST /api/sessions/:id/invoke - runs a domain
// operation (send, query, ...) against a connected session.
func (h *SessionHandler) Invoke(c *gin.Context) {
	identity := c.Param("id")

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	s, err := h.registry.Get(identity)
	if err != nil {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+identity+" not found")
		return
	}

	result, err := s.Invoke(c.Request.Context(), req.Op, req.Args)
	if err != nil {
		var notReady *model.NotReadyError
		switch {
		case errors.As(err, &notReady):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: ErrorDetail{
					Code:    "SESSION_NOT_READY",
					Message: notReady.Error(),
					Details: map[string]interface{}{"state": string(notReady.State)},
				},
			})
		case errors.Is(err, model.ErrSessionTerminated):
			sendError(c, http.StatusGone, "SESSION_TERMINATED", err.Error())
		default:
			sendError(c, http.StatusBadGateway, "DRIVER_ERROR", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
