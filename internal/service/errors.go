package service

import (
	"errors"
	"fmt"

	"rideengine/internal/domain"
	"rideengine/internal/repository"
)

// Error kinds. Every error returned by the services wraps exactly one of these
// so callers can classify it with errors.Is.
var (
	// ErrBadRequest is returned for malformed or out-of-range input.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound is returned when the target entity does not exist, including
	// REQUESTED rides whose expiry has elapsed.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict is returned when the operation clashes with existing state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when the ride's status does not allow
	// the requested action.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyCancelled is returned when cancelling a cancelled ride.
	ErrAlreadyCancelled = errors.New("ride already cancelled")

	// ErrNoDriversOnline is returned when the pool snapshot is empty.
	ErrNoDriversOnline = errors.New("no drivers online")

	// ErrNoDriverAvailable is returned when no candidate survives selection.
	ErrNoDriverAvailable = errors.New("no driver available")

	// ErrGeocodeUnavailable is returned when the drop-off cannot be resolved.
	ErrGeocodeUnavailable = errors.New("geocoding unavailable")

	// ErrUnauthorized is returned when the caller is not authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller may not act on the target.
	ErrForbidden = errors.New("forbidden")
)

var (
	ErrInvalidRideID          = fmt.Errorf("%w: invalid ride id", ErrBadRequest)
	ErrInvalidDriverID        = fmt.Errorf("%w: invalid driver id", ErrBadRequest)
	ErrInvalidUserID          = fmt.Errorf("%w: invalid user id", ErrBadRequest)
	ErrInvalidPickupLocation  = fmt.Errorf("%w: invalid pickup location", ErrBadRequest)
	ErrInvalidDropOffLocation = fmt.Errorf("%w: invalid drop-off location", ErrBadRequest)
	ErrInvalidFare            = fmt.Errorf("%w: fare must be a non-negative number", ErrBadRequest)
	ErrInvalidRating          = fmt.Errorf("%w: rating must be between 1 and 5", ErrBadRequest)
	ErrInvalidLocation        = fmt.Errorf("%w: invalid location", ErrBadRequest)
	ErrInvalidTripEstimate    = fmt.Errorf("%w: distance and duration must be non-negative", ErrBadRequest)
	ErrInvalidVehicle         = fmt.Errorf("%w: vehicle model and plate are required", ErrBadRequest)

	ErrMissingPrincipal = fmt.Errorf("%w: missing caller identity", ErrUnauthorized)

	ErrOutstandingRideRequest = fmt.Errorf("%w: rider already has an outstanding ride request", ErrConflict)
	ErrRideRequestInProgress  = fmt.Errorf("%w: a ride request for this rider is already being processed", ErrConflict)
	ErrRideAlreadyRated       = fmt.Errorf("%w: ride already rated", ErrConflict)
	ErrDriverBusy             = fmt.Errorf("%w: driver is on another ride", ErrConflict)
	ErrDriverAlreadySuspended = fmt.Errorf("%w: driver already suspended", ErrConflict)
	ErrDriverAlreadyAvailable = fmt.Errorf("%w: driver already available", ErrConflict)
	ErrUserAlreadyBlocked     = fmt.Errorf("%w: user already blocked", ErrConflict)
	ErrUserNotBlocked         = fmt.Errorf("%w: user is not blocked", ErrConflict)
	ErrRideNotPurgeable       = fmt.Errorf("%w: only completed rides can be deleted", ErrConflict)

	ErrRideExpired           = fmt.Errorf("%w: ride request expired", ErrNotFound)
	ErrDriverProfileNotFound = fmt.Errorf("%w: driver profile not found", ErrNotFound)

	ErrRideNotCompleted = fmt.Errorf("%w: only completed rides can be rated", ErrInvalidTransition)

	ErrDriverNotAssignedToRide = fmt.Errorf("%w: driver not assigned to this ride", ErrForbidden)
	ErrNotRideRider            = fmt.Errorf("%w: only the ride's rider may do this", ErrForbidden)
	ErrDriverSuspended         = fmt.Errorf("%w: driver is suspended", ErrForbidden)
	ErrRoleNotAllowed          = fmt.Errorf("%w: role not allowed", ErrForbidden)
)

// TransitionError reports a state-machine guard failure together with the
// status the ride was actually in.
type TransitionError struct {
	RideID  string
	Action  domain.RideAction
	Current domain.RideStatus
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s ride %s in status %s: %v", e.Action, e.RideID, e.Current, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// newTransitionError picks the kind for a rejected action.
func newTransitionError(ride *domain.Ride, action domain.RideAction) *TransitionError {
	kind := ErrInvalidTransition
	if action == domain.RideActionCancel && ride.Status == domain.RideStatusCancelled {
		kind = ErrAlreadyCancelled
	}
	return &TransitionError{
		RideID:  ride.ID,
		Action:  action,
		Current: ride.Status,
		Err:     kind,
	}
}

// ErrorKind returns a short stable label for the kind an error wraps.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNoDriversOnline):
		return "no_drivers_online"
	case errors.Is(err, ErrNoDriverAvailable):
		return "no_driver_available"
	case errors.Is(err, ErrGeocodeUnavailable):
		return "geocode_unavailable"
	default:
		return "internal"
	}
}
