package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"rideengine/internal/domain"
	"rideengine/internal/middleware"
	"rideengine/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", service.ErrInvalidFare, http.StatusBadRequest},
		{"missing principal", service.ErrMissingPrincipal, http.StatusUnauthorized},
		{"wrong role", service.ErrRoleNotAllowed, http.StatusForbidden},
		{"not the rider", service.ErrNotRideRider, http.StatusForbidden},
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"expired", service.ErrRideExpired, http.StatusNotFound},
		{"outstanding request", service.ErrOutstandingRideRequest, http.StatusConflict},
		{"already rated", service.ErrRideAlreadyRated, http.StatusConflict},
		{"rating before completion", service.ErrRideNotCompleted, http.StatusConflict},
		{"already cancelled", &service.TransitionError{Err: service.ErrAlreadyCancelled}, http.StatusConflict},
		{"no drivers online", service.ErrNoDriversOnline, http.StatusServiceUnavailable},
		{"no driver available", service.ErrNoDriverAvailable, http.StatusServiceUnavailable},
		{"geocoding", fmt.Errorf("%w: timeout", service.ErrGeocodeUnavailable), http.StatusBadGateway},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func serveError(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(c, err)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestRespondError_TransitionCarriesCurrentStatus(t *testing.T) {
	t.Parallel()

	err := &service.TransitionError{
		RideID:  "ride-1",
		Action:  domain.RideActionPickUp,
		Current: domain.RideStatusRequested,
		Err:     service.ErrInvalidTransition,
	}

	w := serveError(err)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error != "invalid_transition" || resp.CurrentStatus != "REQUESTED" {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestRespondError_InternalErrorsAreMasked(t *testing.T) {
	t.Parallel()

	w := serveError(errors.New("pq: password authentication failed"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Message != "internal error" || strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("internal cause leaked: %s", w.Body.String())
	}
}

// newTestRouter mounts the handlers behind header identity. The services are
// nil: every request here must be rejected before reaching them.
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Identity(middleware.IdentityConfig{TrustHeaders: true}))

	rides := NewRideHandler(nil, nil)
	drivers := NewDriverHandler(nil, nil)
	locations := NewLocationHandler(nil)

	r.POST("/v1/rides", rides.RequestRide)
	r.POST("/v1/rides/:id/rating", rides.Rate)
	r.GET("/v1/drivers/available", drivers.Available)
	r.POST("/v1/locations", locations.UpdateLocation)
	r.PUT("/v1/drivers/me/vehicle", drivers.UpdateVehicle)
	return r
}

func doRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var riderHeaders = map[string]string{"X-User-ID": "rider-1", "X-User-Role": "RIDER"}

func TestRequestRide_RejectsBeforeDispatch(t *testing.T) {
	t.Parallel()

	r := newTestRouter()

	tests := []struct {
		name     string
		body     string
		headers  map[string]string
		wantCode int
		wantKind string
	}{
		{"anonymous", `{}`, nil, http.StatusUnauthorized, "unauthorized"},
		{"malformed json", `{"pickup":`, riderHeaders, http.StatusBadRequest, "bad_request"},
		{"missing pickup", `{"dropoff":{"coordinates":[90.43,23.82]},"fare":10}`, riderHeaders, http.StatusBadRequest, "bad_request"},
		{"pickup with one coordinate", `{"pickup":{"coordinates":[90.41]},"dropoff":{"coordinates":[90.43,23.82]},"fare":10}`, riderHeaders, http.StatusBadRequest, "bad_request"},
		{"missing dropoff", `{"pickup":{"coordinates":[90.41,23.81]},"fare":10}`, riderHeaders, http.StatusBadRequest, "bad_request"},
		{"missing fare", `{"pickup":{"coordinates":[90.41,23.81]},"dropoff":{"coordinates":[90.43,23.82]}}`, riderHeaders, http.StatusBadRequest, "bad_request"},
		{"fare as string", `{"pickup":{"coordinates":[90.41,23.81]},"dropoff":{"coordinates":[90.43,23.82]},"fare":"ten"}`, riderHeaders, http.StatusBadRequest, "bad_request"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := doRequest(r, http.MethodPost, "/v1/rides", tc.body, tc.headers)
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}
			if resp := decodeError(t, w); resp.Error != tc.wantKind {
				t.Errorf("expected kind %q, got %q", tc.wantKind, resp.Error)
			}
		})
	}
}

func TestRate_MalformedBody(t *testing.T) {
	t.Parallel()

	w := doRequest(newTestRouter(), http.MethodPost, "/v1/rides/ride-1/rating", `{"rating":"five"}`, riderHeaders)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAvailable_RequiresCoordinates(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	for _, path := range []string{
		"/v1/drivers/available",
		"/v1/drivers/available?lat=23.8",
		"/v1/drivers/available?lat=north&lng=90.4",
	} {
		w := doRequest(r, http.MethodGet, path, "", riderHeaders)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestUpdateLocation_MalformedBody(t *testing.T) {
	t.Parallel()

	headers := map[string]string{"X-User-ID": "driver-user-1", "X-User-Role": "DRIVER"}
	w := doRequest(newTestRouter(), http.MethodPost, "/v1/locations", `{"coordinates":[90.4]}`, headers)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateVehicle_RequiresModelAndPlate(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	headers := map[string]string{"X-User-ID": "driver-user-1", "X-User-Role": "DRIVER"}

	for _, body := range []string{
		`{"model":"Axio"}`,
		`{"plate":"DHA-11-2233"}`,
		`{"model":"Axio","plate":`,
	} {
		w := doRequest(r, http.MethodPut, "/v1/drivers/me/vehicle", body, headers)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}
