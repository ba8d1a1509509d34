package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/ws"
)

// WSHandler upgrades clients onto the event hub.
type WSHandler struct {
	hub *ws.Hub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Connect handles GET /v1/ws?user_id=...
func (h *WSHandler) Connect(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}

	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		// Upgrade failures write their own response.
		return
	}
}
