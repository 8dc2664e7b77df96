package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideengine/internal/domain"
	"rideengine/internal/middleware"
	"rideengine/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CurrentStatus string `json:"current_status,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Internal errors never expose their cause.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)

	resp := ErrorResponse{Error: service.ErrorKind(err), Message: err.Error()}
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Message = "internal error"
	}

	var te *service.TransitionError
	if errors.As(err, &te) {
		resp.CurrentStatus = string(te.Current)
	}

	c.JSON(code, resp)
}

// respondBadRequest answers a request whose body or query could not be parsed.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: service.ErrorKind(service.ErrBadRequest), Message: message})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	// Not found, including expired requests.
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyCancelled):
		return http.StatusConflict

	case errors.Is(err, service.ErrNoDriversOnline),
		errors.Is(err, service.ErrNoDriverAvailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, service.ErrGeocodeUnavailable):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// principal returns the caller or answers 401.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		respondError(c, service.ErrMissingPrincipal)
		return domain.Principal{}, false
	}
	return p, true
}
