package handler

import (
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/service"
)

// PointView is a GeoJSON point. Coordinates are [lng, lat].
type PointView struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// PointInput is a point supplied by a client.
type PointInput struct {
	Coordinates []float64 `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
}

// toPoint converts the input, reporting false when it is not [lng, lat].
func (p *PointInput) toPoint() (domain.Point, bool) {
	if p == nil || len(p.Coordinates) != 2 {
		return domain.Point{}, false
	}
	return domain.NewPoint(p.Coordinates[1], p.Coordinates[0], p.Address), true
}

// RatingView is the rider's score on a ride.
type RatingView struct {
	RiderID string    `json:"rider_id"`
	Rating  int       `json:"rating"`
	RatedAt time.Time `json:"rated_at"`
}

// RideView is the HTTP representation of a ride.
type RideView struct {
	ID             string      `json:"id"`
	RiderID        string      `json:"rider_id"`
	RiderUsername  string      `json:"rider_username,omitempty"`
	DriverID       string      `json:"driver_id"`
	DriverUsername string      `json:"driver_username,omitempty"`
	PickUp         PointView   `json:"pickup"`
	DropOff        PointView   `json:"dropoff"`
	DriverLocation *PointView  `json:"driver_location,omitempty"`
	Fare           float64     `json:"fare"`
	DistanceKm     *float64    `json:"distance_km,omitempty"`
	DurationMin    *float64    `json:"duration_min,omitempty"`
	Status         string      `json:"status"`
	RequestedAt    time.Time   `json:"requested_at"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty"`
	PickedUpAt     *time.Time  `json:"picked_up_at,omitempty"`
	InTransitAt    *time.Time  `json:"in_transit_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	CancelledBy    string      `json:"cancelled_by,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	Rating         *RatingView `json:"rating,omitempty"`
}

// VehicleView describes a driver's vehicle.
type VehicleView struct {
	Model string `json:"model,omitempty"`
	Plate string `json:"plate,omitempty"`
	Color string `json:"color,omitempty"`
}

// CandidateView is a dispatchable driver as ranked for a pickup.
type CandidateView struct {
	DriverID      string      `json:"driver_id"`
	Name          string      `json:"name,omitempty"`
	Username      string      `json:"username,omitempty"`
	Location      *PointView  `json:"location,omitempty"`
	AverageRating float64     `json:"average_rating"`
	DistanceKm    float64     `json:"distance_km"`
	Vehicle       VehicleView `json:"vehicle"`
}

// DriverView is the HTTP representation of a driver profile.
type DriverView struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Username      string      `json:"username,omitempty"`
	Status        string      `json:"status"`
	IsApproved    bool        `json:"is_approved"`
	Vehicle       VehicleView `json:"vehicle"`
	TotalRides    int         `json:"total_rides"`
	TotalEarnings float64     `json:"total_earnings"`
	AverageRating float64     `json:"average_rating"`
	TotalRatings  int         `json:"total_ratings"`
}

// DriverStatsView is a driver's lifetime summary.
type DriverStatsView struct {
	DriverID        string  `json:"driver_id"`
	Status          string  `json:"status"`
	TotalRides      int     `json:"total_rides"`
	TotalEarnings   float64 `json:"total_earnings"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	AverageRating   float64 `json:"average_rating"`
	TotalRatings    int     `json:"total_ratings"`
}

func pointView(p domain.Point) PointView {
	return PointView{Type: domain.PointType, Coordinates: p.Coordinates, Address: p.Address}
}

func pointViewPtr(p *domain.Point) *PointView {
	if p == nil {
		return nil
	}
	v := pointView(*p)
	return &v
}

func vehicleView(v domain.Vehicle) VehicleView {
	return VehicleView{Model: v.Model, Plate: v.Plate, Color: v.Color}
}

func rideView(r *domain.Ride) RideView {
	v := RideView{
		ID:             r.ID,
		RiderID:        r.RiderID,
		RiderUsername:  r.RiderUsername,
		DriverID:       r.DriverID,
		DriverUsername: r.DriverUsername,
		PickUp:         pointView(r.PickUp),
		DropOff:        pointView(r.DropOff),
		DriverLocation: pointViewPtr(r.DriverLocation),
		Fare:           r.Fare,
		DistanceKm:     r.DistanceKm,
		DurationMin:    r.DurationMin,
		Status:         string(r.Status),
		RequestedAt:    r.RequestedAt,
		AcceptedAt:     r.AcceptedAt,
		PickedUpAt:     r.PickedUpAt,
		InTransitAt:    r.InTransitAt,
		CompletedAt:    r.CompletedAt,
		CancelledAt:    r.CancelledAt,
		CancelledBy:    string(r.CancelledBy),
		ExpiresAt:      r.ExpiresAt,
	}
	if r.Rating != nil {
		v.Rating = &RatingView{RiderID: r.Rating.RiderID, Rating: r.Rating.Score, RatedAt: r.Rating.RatedAt}
	}
	return v
}

func rideViews(rides []*domain.Ride) []RideView {
	out := make([]RideView, 0, len(rides))
	for _, r := range rides {
		out = append(out, rideView(r))
	}
	return out
}

func candidateView(c domain.Candidate) CandidateView {
	return CandidateView{
		DriverID:      c.DriverID,
		Name:          c.Name,
		Username:      c.Username,
		Location:      pointViewPtr(c.Location),
		AverageRating: c.AverageRating,
		DistanceKm:    c.DistanceKm,
		Vehicle:       vehicleView(c.Vehicle),
	}
}

func driverView(d *domain.Driver) DriverView {
	return DriverView{
		ID:            d.ID,
		UserID:        d.UserID,
		Username:      d.Username,
		Status:        string(d.Status),
		IsApproved:    d.IsApproved,
		Vehicle:       vehicleView(d.Vehicle),
		TotalRides:    d.TotalRides,
		TotalEarnings: d.TotalEarnings,
		AverageRating: d.Rating.AverageRating,
		TotalRatings:  d.Rating.TotalRatings,
	}
}

func driverStatsView(s *service.DriverStats) DriverStatsView {
	return DriverStatsView{
		DriverID:        s.DriverID,
		Status:          string(s.Status),
		TotalRides:      s.TotalRides,
		TotalEarnings:   s.TotalEarnings,
		TotalDistanceKm: s.TotalDistanceKm,
		AverageRating:   s.AverageRating,
		TotalRatings:    s.TotalRatings,
	}
}
