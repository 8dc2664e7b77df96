package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideengine/internal/domain"
	"rideengine/internal/repository"
)

// UserHandler handles HTTP requests for the caller's own account.
type UserHandler struct {
	userRepo repository.UserRepository
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userRepo repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// UserResponse is the HTTP representation of a user.
type UserResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Username   string     `json:"username"`
	Email      string     `json:"email,omitempty"`
	Role       string     `json:"role"`
	IsOnline   bool       `json:"is_online"`
	IsBlocked  bool       `json:"is_blocked"`
	Location   *PointView `json:"location,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Me handles GET /v1/me
func (h *UserHandler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, userResponse(user))
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		IsOnline:   u.IsOnline,
		IsBlocked:  u.IsBlocked,
		Location:   pointViewPtr(u.Location),
		LastSeenAt: u.LastSeenAt,
	}
}
