package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideengine/internal/domain"
	"rideengine/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	dispatch  *service.DispatchService
	lifecycle *service.LifecycleService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(dispatch *service.DispatchService, lifecycle *service.LifecycleService) *RideHandler {
	return &RideHandler{
		dispatch:  dispatch,
		lifecycle: lifecycle,
	}
}

// RequestRideRequest is the HTTP request body for requesting a ride.
type RequestRideRequest struct {
	PickUp      *PointInput `json:"pickup"`
	DropOff     *PointInput `json:"dropoff"`
	Fare        *float64    `json:"fare"`
	DistanceKm  *float64    `json:"distance_km,omitempty"`
	DurationMin *float64    `json:"duration_min,omitempty"`
}

// RequestRideResponse is the HTTP response for a dispatched ride.
type RequestRideResponse struct {
	Ride           RideView      `json:"ride"`
	Driver         CandidateView `json:"driver"`
	CandidateCount int           `json:"candidate_count"`
}

// RateRideRequest is the HTTP request body for rating a ride.
type RateRideRequest struct {
	Rating int `json:"rating"`
}

// RequestRide handles POST /v1/rides
func (h *RideHandler) RequestRide(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	pickup, ok := req.PickUp.toPoint()
	if !ok {
		respondError(c, service.ErrInvalidPickupLocation)
		return
	}
	dropoff, ok := req.DropOff.toPoint()
	if !ok {
		respondError(c, service.ErrInvalidDropOffLocation)
		return
	}
	if req.Fare == nil {
		respondError(c, service.ErrInvalidFare)
		return
	}

	result, err := h.dispatch.RequestRide(c.Request.Context(), p, service.RequestRideRequest{
		PickUp:      pickup,
		DropOff:     dropoff,
		Fare:        *req.Fare,
		DistanceKm:  req.DistanceKm,
		DurationMin: req.DurationMin,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, RequestRideResponse{
		Ride:           rideView(result.Ride),
		Driver:         candidateView(result.Driver),
		CandidateCount: result.CandidateCount,
	})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	ride, err := h.lifecycle.GetRide(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideView(ride))
}

// ListMine handles GET /v1/rides/mine
func (h *RideHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	rides, err := h.lifecycle.ListMine(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"rides": rideViews(rides), "count": len(rides)})
}

// Accept handles POST /v1/rides/:id/accept
func (h *RideHandler) Accept(c *gin.Context) {
	h.transition(c, h.lifecycle.Accept)
}

// Cancel handles POST /v1/rides/:id/cancel
func (h *RideHandler) Cancel(c *gin.Context) {
	h.transition(c, h.lifecycle.Cancel)
}

// PickUp handles POST /v1/rides/:id/pick-up
func (h *RideHandler) PickUp(c *gin.Context) {
	h.transition(c, h.lifecycle.PickUp)
}

// StartTransit handles POST /v1/rides/:id/in-transit
func (h *RideHandler) StartTransit(c *gin.Context) {
	h.transition(c, h.lifecycle.StartTransit)
}

// Complete handles POST /v1/rides/:id/complete
func (h *RideHandler) Complete(c *gin.Context) {
	h.transition(c, h.lifecycle.Complete)
}

type transitionFunc func(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error)

func (h *RideHandler) transition(c *gin.Context, fn transitionFunc) {
	p, ok := principal(c)
	if !ok {
		return
	}

	ride, err := fn(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideView(ride))
}

// Rate handles POST /v1/rides/:id/rating
func (h *RideHandler) Rate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.lifecycle.Rate(c.Request.Context(), c.Param("id"), p, req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rideView(ride))
}
