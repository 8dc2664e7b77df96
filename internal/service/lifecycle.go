package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/observability"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
)

// DefaultRideListLimit caps the rides returned by ListMine.
const DefaultRideListLimit = 50

// LifecycleService moves rides through the state machine. Every transition is
// load, guard, compare-and-set and side effects inside one transaction.
type LifecycleService struct {
	tx       repository.Transactor
	rides    repository.RideRepository
	cache    redis.RideCacheInterface
	notifier *NotificationService
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecycleService creates a new LifecycleService. cache may be nil.
func NewLifecycleService(
	tx repository.Transactor,
	rides repository.RideRepository,
	cache redis.RideCacheInterface,
	notifier *NotificationService,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		tx:       tx,
		rides:    rides,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the service clock.
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	return s
}

// Accept binds the ride to its driver for good and marks the driver RIDING.
func (s *LifecycleService) Accept(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	return s.transition(ctx, rideID, actor, domain.RideActionAccept)
}

// Cancel cancels a ride that has not been accepted yet.
func (s *LifecycleService) Cancel(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	return s.transition(ctx, rideID, actor, domain.RideActionCancel)
}

// PickUp records that the driver has collected the rider.
func (s *LifecycleService) PickUp(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	return s.transition(ctx, rideID, actor, domain.RideActionPickUp)
}

// StartTransit records that the ride is under way.
func (s *LifecycleService) StartTransit(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	return s.transition(ctx, rideID, actor, domain.RideActionStartTransit)
}

// Complete finishes the ride, frees the driver and updates the driver's
// totals and both parties' histories.
func (s *LifecycleService) Complete(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	return s.transition(ctx, rideID, actor, domain.RideActionComplete)
}

func (s *LifecycleService) transition(ctx context.Context, rideID string, actor domain.Principal, action domain.RideAction) (*domain.Ride, error) {
	ride, err := s.applyTransition(ctx, rideID, actor, action)
	observability.RideTransitionsTotal.WithLabelValues(string(action), ErrorKind(err)).Inc()
	if err != nil {
		s.logger.Info("ride transition rejected",
			"ride_id", rideID, "action", action, "user_id", actor.UserID, "kind", ErrorKind(err), "error", err)
		return nil, err
	}

	s.invalidate(ctx, ride.ID)
	s.notifier.NotifyStatusChanged(ctx, ride, counterparty(ride, actor))

	s.logger.Info("ride transition",
		"ride_id", ride.ID, "action", action, "status", ride.Status, "user_id", actor.UserID)
	return ride, nil
}

func (s *LifecycleService) applyTransition(ctx context.Context, rideID string, actor domain.Principal, action domain.RideAction) (*domain.Ride, error) {
	if actor.UserID == "" {
		return nil, ErrMissingPrincipal
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	edge, ok := domain.TransitionFor(action)
	if !ok {
		return nil, ErrBadRequest
	}

	var updated *domain.Ride
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()

		ride, err := repos.Rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.IsExpired(now) {
			return ErrRideExpired
		}
		if ride.Status != edge.From {
			return newTransitionError(ride, action)
		}
		if err := authorizeTransition(ride, actor, action); err != nil {
			return err
		}

		next := *ride
		next.Status = edge.To
		next.UpdatedAt = now
		stampTransition(&next, actor, action, now)

		swapped, err := repos.Rides.CompareAndSwapStatus(ctx, &next, edge.From, now)
		if err != nil {
			return err
		}
		if !swapped {
			return s.diagnoseLostSwap(ctx, repos.Rides, rideID, action, now)
		}

		switch action {
		case domain.RideActionAccept:
			if err := claimDriver(ctx, repos.Drivers, next.DriverID); err != nil {
				return err
			}
		case domain.RideActionComplete:
			var distance float64
			if next.DistanceKm != nil {
				distance = *next.DistanceKm
			}
			if err := repos.Drivers.RecordCompletion(ctx, next.DriverID, next.ID, next.Fare, distance); err != nil {
				return err
			}
			if err := repos.Users.AppendRideHistory(ctx, next.RiderID, next.ID); err != nil {
				return err
			}
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// diagnoseLostSwap explains why a compare-and-set found nothing to update.
func (s *LifecycleService) diagnoseLostSwap(ctx context.Context, rides repository.RideRepository, rideID string, action domain.RideAction, now time.Time) error {
	current, err := rides.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if current.IsExpired(now) {
		return ErrRideExpired
	}
	return newTransitionError(current, action)
}

// claimDriver moves the ride's driver to RIDING. A driver already on another
// ride or suspended since dispatch makes the accept fail.
func claimDriver(ctx context.Context, drivers repository.DriverRepository, driverID string) error {
	ok, err := drivers.TransitionStatus(ctx, driverID, domain.DriverStatusRiding,
		domain.DriverStatusAvailable, domain.DriverStatusUnavailable)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	driver, err := drivers.GetByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDriverProfileNotFound
		}
		return err
	}
	if driver.Status == domain.DriverStatusSuspended {
		return ErrDriverSuspended
	}
	return ErrDriverBusy
}

func authorizeTransition(ride *domain.Ride, actor domain.Principal, action domain.RideAction) error {
	if actor.IsAdmin() {
		return nil
	}

	if action.RequiresDriver() {
		if actor.Role != domain.RoleDriver {
			return ErrRoleNotAllowed
		}
		if !ride.HasDriverUser(actor.UserID) {
			return ErrDriverNotAssignedToRide
		}
		return nil
	}

	switch actor.Role {
	case domain.RoleRider:
		if !ride.HasRider(actor.UserID) {
			return ErrNotRideRider
		}
	case domain.RoleDriver:
		if !ride.HasDriverUser(actor.UserID) {
			return ErrDriverNotAssignedToRide
		}
	default:
		return ErrRoleNotAllowed
	}
	return nil
}

func stampTransition(ride *domain.Ride, actor domain.Principal, action domain.RideAction, now time.Time) {
	at := now
	switch action {
	case domain.RideActionAccept:
		ride.AcceptedAt = &at
		ride.ExpiresAt = nil
	case domain.RideActionCancel:
		ride.CancelledAt = &at
		ride.CancelledBy = cancelledBy(actor)
		ride.ExpiresAt = nil
	case domain.RideActionPickUp:
		ride.PickedUpAt = &at
	case domain.RideActionStartTransit:
		ride.InTransitAt = &at
	case domain.RideActionComplete:
		ride.CompletedAt = &at
	}
}

func cancelledBy(actor domain.Principal) domain.CancelledBy {
	switch actor.Role {
	case domain.RoleRider:
		return domain.CancelledByRider
	case domain.RoleDriver:
		return domain.CancelledByDriver
	default:
		return domain.CancelledByAdmin
	}
}

// counterparty is the user told about a transition: the rider when the driver
// or an admin acted, the driver's user when the rider acted.
func counterparty(ride *domain.Ride, actor domain.Principal) string {
	if ride.HasRider(actor.UserID) {
		return ride.DriverUserID
	}
	return ride.RiderID
}

// Rate attaches the rider's score to a completed ride and folds it into the
// driver's average.
func (s *LifecycleService) Rate(ctx context.Context, rideID string, actor domain.Principal, score int) (*domain.Ride, error) {
	ride, err := s.rate(ctx, rideID, actor, score)
	observability.RatingsTotal.WithLabelValues(ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, ride.ID)
	s.notifier.NotifyRideRated(ctx, ride.ID, ride.DriverUserID, score)
	s.logger.Info("ride rated", "ride_id", ride.ID, "driver_id", ride.DriverID, "rating", score)
	return ride, nil
}

func (s *LifecycleService) rate(ctx context.Context, rideID string, actor domain.Principal, score int) (*domain.Ride, error) {
	if actor.UserID == "" {
		return nil, ErrMissingPrincipal
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if score < 1 || score > 5 {
		return nil, ErrInvalidRating
	}

	var rated *domain.Ride
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ride, err := repos.Rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != domain.RideStatusCompleted {
			return ErrRideNotCompleted
		}
		if !ride.HasRider(actor.UserID) {
			return ErrNotRideRider
		}
		if ride.Rating != nil {
			return ErrRideAlreadyRated
		}

		rating := domain.RideRating{RiderID: actor.UserID, Score: score, RatedAt: s.now()}
		attached, err := repos.Rides.AttachRating(ctx, ride.ID, rating)
		if err != nil {
			return err
		}
		if !attached {
			return ErrRideAlreadyRated
		}

		if err := repos.Drivers.ApplyRating(ctx, ride.DriverID, ride.ID, score); err != nil {
			return err
		}

		next := *ride
		next.Rating = &rating
		rated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rated, nil
}

// GetRide returns a ride the caller takes part in. Admins may read any ride.
// Reads go through the ride cache when one is configured.
func (s *LifecycleService) GetRide(ctx context.Context, rideID string, actor domain.Principal) (*domain.Ride, error) {
	if actor.UserID == "" {
		return nil, ErrMissingPrincipal
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride := s.cached(ctx, rideID)
	if ride == nil {
		var err error
		ride, err = s.rides.GetByID(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetRide(ctx, ride); err != nil {
				s.logger.Warn("ride cache write failed", "ride_id", rideID, "error", err)
			}
		}
	}

	if ride.IsExpired(s.now()) {
		return nil, ErrRideExpired
	}
	if !actor.IsAdmin() && !ride.HasRider(actor.UserID) && !ride.HasDriverUser(actor.UserID) {
		return nil, ErrForbidden
	}
	return ride, nil
}

// ListMine returns the caller's most recent rides as rider or driver.
// Expired requests are left out.
func (s *LifecycleService) ListMine(ctx context.Context, actor domain.Principal) ([]*domain.Ride, error) {
	if actor.UserID == "" {
		return nil, ErrMissingPrincipal
	}

	rides, err := s.rides.ListByParticipant(ctx, actor.UserID, DefaultRideListLimit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	live := rides[:0]
	for _, r := range rides {
		if !r.IsExpired(now) {
			live = append(live, r)
		}
	}
	return live, nil
}

func (s *LifecycleService) cached(ctx context.Context, rideID string) *domain.Ride {
	if s.cache == nil {
		return nil
	}
	ride, err := s.cache.GetRide(ctx, rideID)
	if err != nil {
		s.logger.Warn("ride cache read failed", "ride_id", rideID, "error", err)
		return nil
	}
	return ride
}

func (s *LifecycleService) invalidate(ctx context.Context, rideID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRide(ctx, rideID); err != nil {
		s.logger.Warn("ride cache invalidation failed", "ride_id", rideID, "error", err)
	}
}
