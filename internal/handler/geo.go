package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/maps"
	"dispatch/internal/service"
)

// GeoHandler handles HTTP requests for geocoding and place lookup.
type GeoHandler struct {
	geo *maps.Client
}

// NewGeoHandler creates a new GeoHandler.
func NewGeoHandler(geo *maps.Client) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// GeocodeResponse is the HTTP response for a geocode lookup.
type GeocodeResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// SuggestionResponse is one autocomplete suggestion.
type SuggestionResponse struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}

// Geocode handles GET /v1/geo/geocode?address=...
func (h *GeoHandler) Geocode(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "address is required"})
		return
	}

	result, err := h.geo.Geocode(c.Request.Context(), address)
	if err != nil {
		switch {
		case errors.Is(err, maps.ErrInvalidInput):
			respondError(c, service.ErrInvalidInput)
		case errors.Is(err, maps.ErrUnavailable):
			respondError(c, service.ErrServiceUnavailable)
		default:
			respondError(c, err)
		}
		return
	}
	respondJSON(c, http.StatusOK, GeocodeResponse{
		Lat:     result.Lat,
		Lng:     result.Lng,
		Address: result.NormalizedAddress,
	})
}

// Autocomplete handles GET /v1/geo/autocomplete?prefix=...
func (h *GeoHandler) Autocomplete(c *gin.Context) {
	suggestions := h.geo.Autocomplete(c.Request.Context(), c.Query("prefix"))

	out := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, SuggestionResponse{Description: s.Description, PlaceID: s.PlaceID})
	}
	respondJSON(c, http.StatusOK, out)
}
