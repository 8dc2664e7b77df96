package domain

import "time"

// DriverStatus represents the current working status of a driver.
type DriverStatus string

const (
	DriverStatusUnavailable DriverStatus = "UNAVAILABLE"
	DriverStatusAvailable   DriverStatus = "AVAILABLE"
	DriverStatusRiding      DriverStatus = "RIDING"
	DriverStatusSuspended   DriverStatus = "SUSPENDED"
)

// Vehicle describes the car a driver operates.
type Vehicle struct {
	Model string
	Plate string
	Color string
}

// DriverRating is the running average of rider scores.
type DriverRating struct {
	AverageRating float64
	TotalRatings  int
}

// Driver is the dispatch-side profile of a user with the DRIVER role.
type Driver struct {
	ID         string
	UserID     string
	Username   string
	Status     DriverStatus
	IsApproved bool
	Vehicle    Vehicle

	TotalRides      int
	TotalEarnings   float64
	TotalDistanceKm float64
	Rating          DriverRating

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDispatchable reports whether the driver may be offered new rides.
func (d *Driver) IsDispatchable() bool {
	return d.Status == DriverStatusAvailable && d.IsApproved
}

// Candidate is a driver as seen by the selection policy. It is derived from a
// fresh read and never cached.
type Candidate struct {
	DriverID      string
	UserID        string
	Name          string
	Username      string
	Email         string
	Location      *Point
	Status        DriverStatus
	IsApproved    bool
	AverageRating float64
	Vehicle       Vehicle

	// DistanceKm is filled in by the selection policy, rounded to 2 decimals.
	DistanceKm float64
}
