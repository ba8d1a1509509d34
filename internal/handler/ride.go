package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService     *service.RideService
	dispatchService *service.DispatchService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, dispatchService *service.DispatchService) *RideHandler {
	return &RideHandler{
		rideService:     rideService,
		dispatchService: dispatchService,
	}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	RiderID            string  `json:"rider_id"`
	PickupAddress      string  `json:"pickup_address,omitempty"`
	PickupLat          float64 `json:"pickup_lat"`
	PickupLng          float64 `json:"pickup_lng"`
	DestinationAddress string  `json:"destination_address,omitempty"`
	DestinationLat     float64 `json:"destination_lat"`
	DestinationLng     float64 `json:"destination_lng"`
	VehicleClass       string  `json:"vehicle_class"` // ECONOMY, STANDARD, PREMIUM
}

// AcceptRideRequest is the HTTP request body for accepting a ride.
type AcceptRideRequest struct {
	DriverID string `json:"driver_id"`
}

// StartRideRequest is the HTTP request body for starting a ride.
type StartRideRequest struct {
	DriverID         string `json:"driver_id"`
	VerificationCode string `json:"verification_code"`
}

// CompleteRideRequest is the HTTP request body for completing a ride.
type CompleteRideRequest struct {
	DriverID      string `json:"driver_id"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Tip           int64  `json:"tip,omitempty"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

// RateRideRequest is the HTTP request body for rating a completed ride.
type RateRideRequest struct {
	RiderID string `json:"rider_id"`
	Rating  int    `json:"rating"`
	Review  string `json:"review,omitempty"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID               string  `json:"id"`
	RiderID          string  `json:"rider_id"`
	DriverID         string  `json:"driver_id,omitempty"`
	PickupLat        float64 `json:"pickup_lat"`
	PickupLng        float64 `json:"pickup_lng"`
	DestinationLat   float64 `json:"destination_lat"`
	DestinationLng   float64 `json:"destination_lng"`
	VehicleClass     string  `json:"vehicle_class"`
	Status           string  `json:"status"`
	FareAmount       int64   `json:"fare_amount"`
	FareCurrency     string  `json:"fare_currency"`
	DistanceMeters   float64 `json:"distance_meters"`
	DurationSeconds  float64 `json:"duration_seconds"`
	EstimatedArrival string  `json:"estimated_arrival,omitempty"`
	CancelReason     string  `json:"cancel_reason,omitempty"`
	Rating           int     `json:"rating,omitempty"`
	RequestedAt      string  `json:"requested_at"`
}

// CreateRideResponse is the HTTP response for creating a ride. The
// verification code is only disclosed here, to the rider.
type CreateRideResponse struct {
	RideResponse
	VerificationCode string `json:"verification_code"`
	NotifiedDrivers  int    `json:"notified_drivers"`
}

func toRideResponse(ride *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:              ride.ID,
		RiderID:         ride.RiderID,
		DriverID:        ride.DriverID,
		PickupLat:       ride.Pickup.Lat,
		PickupLng:       ride.Pickup.Lng,
		DestinationLat:  ride.Destination.Lat,
		DestinationLng:  ride.Destination.Lng,
		VehicleClass:    string(ride.VehicleClass),
		Status:          string(ride.Status),
		FareAmount:      ride.Fare.Amount,
		FareCurrency:    ride.Fare.Currency,
		DistanceMeters:  ride.DistanceMeters,
		DurationSeconds: ride.DurationSeconds,
		CancelReason:    ride.CancelReason,
		Rating:          ride.Rating,
		RequestedAt:     ride.RequestedAt.Format(time.RFC3339),
	}
	if !ride.EstimatedArrival.IsZero() {
		resp.EstimatedArrival = ride.EstimatedArrival.Format(time.RFC3339)
	}
	return resp
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.dispatchService.RequestRide(c.Request.Context(), service.RideRequest{
		RiderID:      req.RiderID,
		Pickup:       domain.Location{Address: req.PickupAddress, Lat: req.PickupLat, Lng: req.PickupLng},
		Destination:  domain.Location{Address: req.DestinationAddress, Lat: req.DestinationLat, Lng: req.DestinationLng},
		VehicleClass: domain.VehicleClass(req.VehicleClass),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateRideResponse{
		RideResponse:     toRideResponse(result.Ride),
		VerificationCode: result.Ride.VerificationCode,
		NotifiedDrivers:  result.NotifiedDrivers,
	})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// ListRides handles GET /v1/rides
func (h *RideHandler) ListRides(c *gin.Context) {
	rides, err := h.rideService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]RideResponse, 0, len(rides))
	for _, ride := range rides {
		out = append(out, toRideResponse(ride))
	}
	respondJSON(c, http.StatusOK, out)
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	var req AcceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.Accept(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// MarkEnRoute handles POST /v1/rides/:id/enroute
func (h *RideHandler) MarkEnRoute(c *gin.Context) {
	var req AcceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.MarkEnRoute(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	var req StartRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.Start(c.Request.Context(), c.Param("id"), req.DriverID, req.VerificationCode)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	var req CompleteRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.Complete(c.Request.Context(), c.Param("id"), req.DriverID, req.PaymentMethod, req.Tip)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.Cancel(c.Request.Context(), c.Param("id"), req.CancelledBy, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// RateRide handles POST /v1/rides/:id/rate
func (h *RideHandler) RateRide(c *gin.Context) {
	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.rideService.Rate(c.Request.Context(), c.Param("id"), req.RiderID, req.Rating, req.Review); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "rated"})
}
