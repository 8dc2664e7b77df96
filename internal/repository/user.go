package repository

import (
	"context"
	"time"

	"rideengine/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// UpdateLocation stores the user's latest position.
	UpdateLocation(ctx context.Context, id string, loc domain.Point, seenAt time.Time) error

	// SetOnline flips the user's online flag.
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error

	// SetBlocked flips the user's blocked flag.
	SetBlocked(ctx context.Context, id string, blocked bool) error

	// AppendRideHistory adds a ride to the user's history once.
	AppendRideHistory(ctx context.Context, userID, rideID string) error
}
