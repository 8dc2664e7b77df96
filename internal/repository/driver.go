package repository

import (
	"context"
	"time"

	"rideengine/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByUserID retrieves the driver profile owned by a user.
	GetByUserID(ctx context.Context, userID string) (*domain.Driver, error)

	// GetAll retrieves all drivers.
	GetAll(ctx context.Context) ([]*domain.Driver, error)

	// TransitionStatus sets the driver status to `to` only when the current
	// status is one of from. Reports whether the write happened.
	TransitionStatus(ctx context.Context, id string, to domain.DriverStatus, from ...domain.DriverStatus) (bool, error)

	// SetApproval marks the driver as approved or not.
	SetApproval(ctx context.Context, id string, approved bool) error

	// UpdateVehicle replaces the driver's vehicle details.
	UpdateVehicle(ctx context.Context, id string, v domain.Vehicle) error

	// RecordCompletion returns the driver to AVAILABLE, bumps the ride and
	// earnings counters and adds the ride to the driver's history once.
	RecordCompletion(ctx context.Context, driverID, rideID string, fare, distanceKm float64) error

	// ApplyRating folds one score into the driver's running average and
	// adds the ride to the driver's rated history.
	ApplyRating(ctx context.Context, driverID, rideID string, score int) error

	// MarkIdleUnavailable moves AVAILABLE drivers whose user was last seen
	// before cutoff to UNAVAILABLE.
	MarkIdleUnavailable(ctx context.Context, cutoff time.Time) (int64, error)
}

// DriverPool produces the set of drivers eligible for dispatch.
type DriverPool interface {
	// Snapshot returns drivers whose user is online, not blocked, has the
	// DRIVER role and whose driver status is AVAILABLE.
	Snapshot(ctx context.Context) ([]domain.Candidate, error)
}
