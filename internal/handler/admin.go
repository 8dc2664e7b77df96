package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideengine/internal/service"
)

// AdminHandler handles operator requests.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// SuspendDriver handles POST /v1/admin/drivers/:id/suspend
func (h *AdminHandler) SuspendDriver(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	driver, err := h.admin.SuspendDriver(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, driverView(driver))
}

// ReinstateDriver handles POST /v1/admin/drivers/:id/reinstate
func (h *AdminHandler) ReinstateDriver(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	driver, err := h.admin.ReinstateDriver(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, driverView(driver))
}

// ApproveDriver handles POST /v1/admin/drivers/:id/approve
func (h *AdminHandler) ApproveDriver(c *gin.Context) {
	h.setApproval(c, true)
}

// DisapproveDriver handles POST /v1/admin/drivers/:id/disapprove
func (h *AdminHandler) DisapproveDriver(c *gin.Context) {
	h.setApproval(c, false)
}

func (h *AdminHandler) setApproval(c *gin.Context, approved bool) {
	p, ok := principal(c)
	if !ok {
		return
	}

	driver, err := h.admin.SetDriverApproval(c.Request.Context(), p, c.Param("id"), approved)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, driverView(driver))
}

// BlockUser handles POST /v1/admin/users/:id/block
func (h *AdminHandler) BlockUser(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockUser handles POST /v1/admin/users/:id/unblock
func (h *AdminHandler) UnblockUser(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c *gin.Context, blocked bool) {
	p, ok := principal(c)
	if !ok {
		return
	}

	user, err := h.admin.SetUserBlocked(c.Request.Context(), p, c.Param("id"), blocked)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, userResponse(user))
}

// PurgeRide handles DELETE /v1/admin/rides/:id
func (h *AdminHandler) PurgeRide(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.admin.PurgeRide(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDrivers handles GET /v1/admin/drivers
func (h *AdminHandler) ListDrivers(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	drivers, err := h.admin.ListDrivers(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]DriverView, 0, len(drivers))
	for _, d := range drivers {
		views = append(views, driverView(d))
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": views, "count": len(views)})
}
