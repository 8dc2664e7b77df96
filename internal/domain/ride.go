package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested RideStatus = "REQUESTED"
	RideStatusAccepted  RideStatus = "ACCEPTED"
	RideStatusPickedUp  RideStatus = "PICKED_UP"
	RideStatusInTransit RideStatus = "IN_TRANSIT"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can leave the status.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// CancelledBy records which kind of actor cancelled a ride.
type CancelledBy string

const (
	CancelledByRider  CancelledBy = "RIDER"
	CancelledByDriver CancelledBy = "DRIVER"
	CancelledByAdmin  CancelledBy = "ADMIN"
)

// PointType is the only geometry type used for ride locations.
const PointType = "Point"

// Point is a GeoJSON-style position. Coordinates are ordered [lng, lat].
type Point struct {
	Type        string
	Coordinates [2]float64
	Address     string
}

// NewPoint builds a Point from latitude and longitude.
func NewPoint(lat, lng float64, address string) Point {
	return Point{
		Type:        PointType,
		Coordinates: [2]float64{lng, lat},
		Address:     address,
	}
}

// Lat returns the latitude of the point.
func (p Point) Lat() float64 { return p.Coordinates[1] }

// Lng returns the longitude of the point.
func (p Point) Lng() float64 { return p.Coordinates[0] }

// Valid reports whether the coordinates are within WGS84 bounds.
func (p Point) Valid() bool {
	lat, lng := p.Lat(), p.Lng()
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// RideRating is the rider's score for a completed ride.
type RideRating struct {
	RiderID string
	Score   int
	RatedAt time.Time
}

// Ride represents a ride from request to a terminal status.
type Ride struct {
	ID             string
	RiderID        string
	RiderUsername  string
	DriverID       string
	DriverUserID   string
	DriverUsername string

	PickUp         Point
	DropOff        Point
	DriverLocation *Point

	// Fare is supplied by the caller and stored verbatim.
	Fare        float64
	DistanceKm  *float64
	DurationMin *float64

	Status      RideStatus
	RequestedAt time.Time
	AcceptedAt  *time.Time
	PickedUpAt  *time.Time
	InTransitAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	CancelledBy CancelledBy

	// ExpiresAt is only set while the ride is REQUESTED.
	ExpiresAt *time.Time

	Rating    *RideRating
	UpdatedAt time.Time
}

// IsExpired reports whether a REQUESTED ride has outlived its expiry.
// Expired rides are treated as if they no longer exist.
func (r *Ride) IsExpired(now time.Time) bool {
	if r.Status != RideStatusRequested || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// IsActive reports whether the ride is bound to its driver and not finished.
func (r *Ride) IsActive() bool {
	switch r.Status {
	case RideStatusAccepted, RideStatusPickedUp, RideStatusInTransit:
		return true
	}
	return false
}

// HasRider reports whether the user is the rider of the ride.
func (r *Ride) HasRider(userID string) bool {
	return userID != "" && r.RiderID == userID
}

// HasDriverUser reports whether the user owns the driver bound to the ride.
func (r *Ride) HasDriverUser(userID string) bool {
	return userID != "" && r.DriverUserID == userID
}
