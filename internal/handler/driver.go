package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rideengine/internal/domain"
	"rideengine/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
	dispatch      *service.DispatchService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService, dispatch *service.DispatchService) *DriverHandler {
	return &DriverHandler{
		driverService: driverService,
		dispatch:      dispatch,
	}
}

// NearbyDriverResponse is one entry of the nearby lookup.
type NearbyDriverResponse struct {
	DriverID   string  `json:"driver_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

// Available handles GET /v1/drivers/available?lat=&lng=
func (h *DriverHandler) Available(c *gin.Context) {
	at, ok := queryPoint(c)
	if !ok {
		respondError(c, service.ErrInvalidPickupLocation)
		return
	}

	candidates, err := h.dispatch.AvailableDrivers(c.Request.Context(), at)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]CandidateView, 0, len(candidates))
	for _, cand := range candidates {
		views = append(views, candidateView(cand))
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": views, "count": len(views)})
}

// Nearby handles GET /v1/drivers/nearby?lat=&lng=&radius_km=
func (h *DriverHandler) Nearby(c *gin.Context) {
	at, ok := queryPoint(c)
	if !ok {
		respondError(c, service.ErrInvalidLocation)
		return
	}

	var radius float64
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondBadRequest(c, "invalid radius_km")
			return
		}
		radius = r
	}

	positions, err := h.driverService.Nearby(c.Request.Context(), at, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]NearbyDriverResponse, 0, len(positions))
	for _, pos := range positions {
		resp = append(resp, NearbyDriverResponse{
			DriverID:   pos.DriverID,
			Lat:        pos.Lat,
			Lng:        pos.Lng,
			DistanceKm: pos.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": resp, "count": len(resp)})
}

// RideRequests handles GET /v1/drivers/me/requests
func (h *DriverHandler) RideRequests(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	rides, err := h.driverService.RideRequests(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"rides": rideViews(rides), "count": len(rides)})
}

// GoOnline handles POST /v1/drivers/me/online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	h.updateSelf(c, h.driverService.GoOnline)
}

// GoOffline handles POST /v1/drivers/me/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	h.updateSelf(c, h.driverService.GoOffline)
}

// ToggleAvailability handles POST /v1/drivers/me/availability
func (h *DriverHandler) ToggleAvailability(c *gin.Context) {
	h.updateSelf(c, h.driverService.ToggleAvailability)
}

// UpdateVehicleRequest is the body of a vehicle update.
type UpdateVehicleRequest struct {
	Model string `json:"model" binding:"required"`
	Plate string `json:"plate" binding:"required"`
	Color string `json:"color"`
}

// UpdateVehicle handles PUT /v1/drivers/me/vehicle
func (h *DriverHandler) UpdateVehicle(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driver, err := h.driverService.UpdateVehicle(c.Request.Context(), p, domain.Vehicle{
		Model: req.Model,
		Plate: req.Plate,
		Color: req.Color,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverView(driver))
}

// Stats handles GET /v1/drivers/me/stats
func (h *DriverHandler) Stats(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	stats, err := h.driverService.Stats(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverStatsView(stats))
}

func (h *DriverHandler) updateSelf(c *gin.Context, fn func(context.Context, domain.Principal) (*domain.Driver, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}

	driver, err := fn(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driverView(driver))
}

// queryPoint reads lat and lng query parameters.
func queryPoint(c *gin.Context) (domain.Point, bool) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return domain.Point{}, false
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		return domain.Point{}, false
	}
	return domain.NewPoint(lat, lng, ""), true
}
