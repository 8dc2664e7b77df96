package service

import (
	"context"
	"log/slog"
	"time"

	"rideengine/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRideRequested         NotificationType = "RIDE_REQUESTED"
	NotificationRideAccepted          NotificationType = "RIDE_ACCEPTED"
	NotificationRideCancelled         NotificationType = "RIDE_CANCELLED"
	NotificationRiderPickedUp         NotificationType = "RIDER_PICKED_UP"
	NotificationRideInTransit         NotificationType = "RIDE_IN_TRANSIT"
	NotificationRideCompleted         NotificationType = "RIDE_COMPLETED"
	NotificationRideRated             NotificationType = "RIDE_RATED"
	NotificationDriverLocationUpdated NotificationType = "DRIVER_LOCATION_UPDATED"
)

// Notification is an outbound event addressed to one user.
type Notification struct {
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"`
	RideID      string           `json:"ride_id"`
	Status      string           `json:"status,omitempty"`
	Data        map[string]any   `json:"data,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Publisher delivers notifications to the outside world.
type Publisher interface {
	Publish(ctx context.Context, key string, n Notification) error
}

// NotificationService turns ride events into notifications. Delivery is best
// effort: failures are logged and never fail the operation that caused them.
type NotificationService struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher Publisher, logger *slog.Logger) *NotificationService {
	return &NotificationService{publisher: publisher, logger: logger, now: time.Now}
}

// NotifyRideRequested tells the selected driver about a new ride.
func (s *NotificationService) NotifyRideRequested(ctx context.Context, ride *domain.Ride, driverUserID string) {
	s.send(ctx, Notification{
		Type:        NotificationRideRequested,
		RecipientID: driverUserID,
		RideID:      ride.ID,
		Status:      string(ride.Status),
		Data: map[string]any{
			"pickup":  []float64{ride.PickUp.Lng(), ride.PickUp.Lat()},
			"dropoff": []float64{ride.DropOff.Lng(), ride.DropOff.Lat()},
			"fare":    ride.Fare,
		},
	})
}

// NotifyStatusChanged tells the party that did not act about a transition.
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, ride *domain.Ride, recipientID string) {
	if recipientID == "" {
		return
	}

	var t NotificationType
	switch ride.Status {
	case domain.RideStatusAccepted:
		t = NotificationRideAccepted
	case domain.RideStatusCancelled:
		t = NotificationRideCancelled
	case domain.RideStatusPickedUp:
		t = NotificationRiderPickedUp
	case domain.RideStatusInTransit:
		t = NotificationRideInTransit
	case domain.RideStatusCompleted:
		t = NotificationRideCompleted
	default:
		return
	}

	data := map[string]any{"driver_id": ride.DriverID}
	if ride.CancelledBy != "" {
		data["cancelled_by"] = string(ride.CancelledBy)
	}

	s.send(ctx, Notification{
		Type:        t,
		RecipientID: recipientID,
		RideID:      ride.ID,
		Status:      string(ride.Status),
		Data:        data,
	})
}

// NotifyRideRated tells the driver's user about a new rating.
func (s *NotificationService) NotifyRideRated(ctx context.Context, rideID, driverUserID string, score int) {
	s.send(ctx, Notification{
		Type:        NotificationRideRated,
		RecipientID: driverUserID,
		RideID:      rideID,
		Data:        map[string]any{"rating": score},
	})
}

// NotifyDriverLocationUpdated tells the rider where the driver is now.
func (s *NotificationService) NotifyDriverLocationUpdated(ctx context.Context, rideID, riderID, driverID string, loc domain.Point) {
	s.send(ctx, Notification{
		Type:        NotificationDriverLocationUpdated,
		RecipientID: riderID,
		RideID:      rideID,
		Data: map[string]any{
			"driver_id":   driverID,
			"coordinates": []float64{loc.Lng(), loc.Lat()},
			"address":     loc.Address,
		},
	})
}

func (s *NotificationService) send(ctx context.Context, n Notification) {
	if s == nil || s.publisher == nil {
		return
	}
	n.CreatedAt = s.now()
	if err := s.publisher.Publish(ctx, n.RideID, n); err != nil {
		s.logger.Warn("notification delivery failed",
			"type", n.Type, "ride_id", n.RideID, "recipient_id", n.RecipientID, "error", err)
	}
}
