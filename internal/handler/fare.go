package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// FareHandler handles HTTP requests for fare quotes.
type FareHandler struct {
	dispatchService *service.DispatchService
}

// NewFareHandler creates a new FareHandler.
func NewFareHandler(dispatchService *service.DispatchService) *FareHandler {
	return &FareHandler{dispatchService: dispatchService}
}

// FareQuoteRequest is the HTTP request body for a fare estimate.
type FareQuoteRequest struct {
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DestinationLat float64 `json:"destination_lat"`
	DestinationLng float64 `json:"destination_lng"`
}

// FareQuoteResponse is the HTTP response carrying per-class estimates.
type FareQuoteResponse struct {
	PerClass        map[string]int64 `json:"per_class"`
	DistanceMeters  float64          `json:"distance_meters"`
	DurationSeconds float64          `json:"duration_seconds"`
	SurgeMultiplier float64          `json:"surge_multiplier"`
	Currency        string           `json:"currency"`
}

// QuoteFare handles POST /v1/fares/quote
func (h *FareHandler) QuoteFare(c *gin.Context) {
	var req FareQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	quote, err := h.dispatchService.GetFareQuote(c.Request.Context(),
		domain.Location{Lat: req.PickupLat, Lng: req.PickupLng},
		domain.Location{Lat: req.DestinationLat, Lng: req.DestinationLng},
	)
	if err != nil {
		respondError(c, err)
		return
	}

	perClass := make(map[string]int64, len(quote.PerClass))
	for class, amount := range quote.PerClass {
		perClass[string(class)] = amount
	}
	respondJSON(c, http.StatusOK, FareQuoteResponse{
		PerClass:        perClass,
		DistanceMeters:  quote.DistanceMeters,
		DurationSeconds: quote.DurationSeconds,
		SurgeMultiplier: quote.SurgeMultiplier,
		Currency:        quote.Currency,
	})
}
