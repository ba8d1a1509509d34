package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidVehicleClass),
		errors.Is(err, service.ErrInvalidCoordinates),
		errors.Is(err, service.ErrInvalidRating):
		return http.StatusBadRequest

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	// Verification code mismatch
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusUnprocessableEntity

	// Conflict errors
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrDriverUnavailable),
		service.IsInvalidTransition(err):
		return http.StatusConflict

	// Upstream dependency failures
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
