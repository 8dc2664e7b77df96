package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideengine/internal/service"
)

// LocationHandler accepts coordinate updates over HTTP.
type LocationHandler struct {
	bridge *service.LocationBridge
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(bridge *service.LocationBridge) *LocationHandler {
	return &LocationHandler{bridge: bridge}
}

// UpdateLocationRequest is the HTTP request body for a location update.
type UpdateLocationRequest struct {
	Coordinates []float64 `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
}

// UpdateLocationResponse lists the rides the coordinate was mirrored into.
type UpdateLocationResponse struct {
	MirroredRides []string `json:"mirrored_rides"`
}

// UpdateLocation handles POST /v1/locations
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if len(req.Coordinates) != 2 {
		respondError(c, service.ErrInvalidLocation)
		return
	}

	refs, err := h.bridge.HandleLocationChanged(c.Request.Context(), service.LocationChanged{
		UserID:      p.UserID,
		Coordinates: [2]float64{req.Coordinates[0], req.Coordinates[1]},
		Address:     req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	respondJSON(c, http.StatusOK, UpdateLocationResponse{MirroredRides: ids})
}
