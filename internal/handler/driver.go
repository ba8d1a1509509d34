package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// DriverHandler handles HTTP requests for driver state.
type DriverHandler struct {
	registry *service.Registry
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(registry *service.Registry) *DriverHandler {
	return &DriverHandler{registry: registry}
}

// UpdateLocationRequest is the HTTP request body for a driver heartbeat.
type UpdateLocationRequest struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	VehicleClass string  `json:"vehicle_class"`
	// RecordedAt lets a reconnecting driver replay buffered pings with
	// their original timestamps. Defaults to the server clock.
	RecordedAt string `json:"recorded_at,omitempty"`
}

// SetAvailabilityRequest is the HTTP request body for an availability flip.
type SetAvailabilityRequest struct {
	Available *bool `json:"available"`
}

// UpdateLocation handles POST /v1/drivers/:id/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	at := time.Now()
	if req.RecordedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid recorded_at timestamp"})
			return
		}
		at = parsed
	}

	err := h.registry.UpdateLocation(c.Request.Context(), c.Param("id"), req.Lat, req.Lng, domain.VehicleClass(req.VehicleClass), at)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "updated"})
}

// SetAvailability handles POST /v1/drivers/:id/availability
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.registry.SetAvailable(c.Request.Context(), c.Param("id"), *req.Available); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"available": *req.Available})
}
