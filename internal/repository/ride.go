package repository

import (
	"context"
	"time"

	"rideengine/internal/domain"
)

// RideRef identifies a ride together with its rider.
type RideRef struct {
	ID      string
	RiderID string
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate if the rider already
	// has a REQUESTED ride stored.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByParticipant returns the most recent rides where the user is the
	// rider or the driver's user.
	ListByParticipant(ctx context.Context, userID string, limit int) ([]*domain.Ride, error)

	// HasOutstandingRequest reports whether the rider has a REQUESTED ride
	// that has not expired at now.
	HasOutstandingRequest(ctx context.Context, riderID string, now time.Time) (bool, error)

	// CompareAndSwapStatus writes the ride's status, timestamps and expiry only
	// if the stored status still equals expected and the stored ride has not
	// expired at now. Reports whether the write happened.
	CompareAndSwapStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus, now time.Time) (bool, error)

	// AttachRating stores the rating only if the ride is COMPLETED and not yet
	// rated. Reports whether the write happened.
	AttachRating(ctx context.Context, rideID string, rating domain.RideRating) (bool, error)

	// FindActiveByDriver returns the ride the driver is currently serving.
	// Returns ErrNotFound if there is none.
	FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error)

	// ListRequestedForDriver returns live REQUESTED rides bound to the driver.
	ListRequestedForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.Ride, error)

	// MirrorDriverLocation copies the driver's position into every
	// non-terminal, non-expired ride bound to the driver.
	MirrorDriverLocation(ctx context.Context, driverID string, loc domain.Point, now time.Time) ([]RideRef, error)

	// DeleteExpiredRequests removes REQUESTED rides whose expiry has elapsed.
	// An empty riderID removes them for every rider.
	DeleteExpiredRequests(ctx context.Context, riderID string, now time.Time) (int64, error)

	// DeleteCompleted removes a COMPLETED ride. Reports whether a row was
	// removed.
	DeleteCompleted(ctx context.Context, id string) (bool, error)
}
