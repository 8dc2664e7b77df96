package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/observability"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
)

// DefaultNearbyRadiusKm is the search radius used when none is given.
const DefaultNearbyRadiusKm = 5.0

// DriverService handles the operations a driver performs on their own
// profile, plus the driver-facing read models.
type DriverService struct {
	tx        repository.Transactor
	drivers   repository.DriverRepository
	rides     repository.RideRepository
	locations redis.LocationStoreInterface
	logger    *slog.Logger
	now       func() time.Time

	nearbyRadiusKm float64
}

// NewDriverService creates a new DriverService. locations may be nil.
func NewDriverService(
	tx repository.Transactor,
	drivers repository.DriverRepository,
	rides repository.RideRepository,
	locations redis.LocationStoreInterface,
	logger *slog.Logger,
) *DriverService {
	return &DriverService{
		tx:        tx,
		drivers:   drivers,
		rides:     rides,
		locations: locations,
		logger:    logger,
		now:       time.Now,

		nearbyRadiusKm: DefaultNearbyRadiusKm,
	}
}

// WithClock replaces the service clock.
func (s *DriverService) WithClock(now func() time.Time) *DriverService {
	s.now = now
	return s
}

// WithNearbyRadius sets the radius Nearby uses when the caller gives none.
func (s *DriverService) WithNearbyRadius(km float64) *DriverService {
	if km > 0 {
		s.nearbyRadiusKm = km
	}
	return s
}

// GoOnline marks the driver's user online and makes an idle driver AVAILABLE.
// A driver already RIDING keeps that status.
func (s *DriverService) GoOnline(ctx context.Context, actor domain.Principal) (*domain.Driver, error) {
	var result *domain.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		driver, err := ownDriver(ctx, repos.Drivers, actor)
		if err != nil {
			return err
		}
		if driver.Status == domain.DriverStatusSuspended {
			return ErrDriverSuspended
		}

		if err := repos.Users.SetOnline(ctx, driver.UserID, true, s.now()); err != nil {
			return err
		}
		if driver.Status == domain.DriverStatusUnavailable {
			if _, err := repos.Drivers.TransitionStatus(ctx, driver.ID,
				domain.DriverStatusAvailable, domain.DriverStatusUnavailable); err != nil {
				return err
			}
		}

		result, err = repos.Drivers.GetByID(ctx, driver.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver online", "driver_id", result.ID, "status", result.Status)
	return result, nil
}

// GoOffline marks the driver UNAVAILABLE and the user offline. A driver in
// the middle of a ride cannot go offline.
func (s *DriverService) GoOffline(ctx context.Context, actor domain.Principal) (*domain.Driver, error) {
	var result *domain.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		driver, err := ownDriver(ctx, repos.Drivers, actor)
		if err != nil {
			return err
		}
		if driver.Status == domain.DriverStatusRiding {
			return ErrDriverBusy
		}

		if driver.Status == domain.DriverStatusAvailable {
			ok, err := repos.Drivers.TransitionStatus(ctx, driver.ID,
				domain.DriverStatusUnavailable, domain.DriverStatusAvailable)
			if err != nil {
				return err
			}
			if !ok {
				return ErrDriverBusy
			}
		}
		if err := repos.Users.SetOnline(ctx, driver.UserID, false, s.now()); err != nil {
			return err
		}

		result, err = repos.Drivers.GetByID(ctx, driver.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.forgetPosition(ctx, result.ID)
	s.logger.Info("driver offline", "driver_id", result.ID)
	return result, nil
}

// ToggleAvailability flips an idle driver between AVAILABLE and UNAVAILABLE.
func (s *DriverService) ToggleAvailability(ctx context.Context, actor domain.Principal) (*domain.Driver, error) {
	var result *domain.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		driver, err := ownDriver(ctx, repos.Drivers, actor)
		if err != nil {
			return err
		}

		var to domain.DriverStatus
		switch driver.Status {
		case domain.DriverStatusAvailable:
			to = domain.DriverStatusUnavailable
		case domain.DriverStatusUnavailable:
			to = domain.DriverStatusAvailable
		case domain.DriverStatusSuspended:
			return ErrDriverSuspended
		default:
			return ErrDriverBusy
		}

		ok, err := repos.Drivers.TransitionStatus(ctx, driver.ID, to, driver.Status)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDriverBusy
		}

		result, err = repos.Drivers.GetByID(ctx, driver.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Status == domain.DriverStatusUnavailable {
		s.forgetPosition(ctx, result.ID)
	}
	s.logger.Info("driver availability changed", "driver_id", result.ID, "status", result.Status)
	return result, nil
}

// UpdateVehicle replaces the caller's vehicle details. Model and plate are
// required.
func (s *DriverService) UpdateVehicle(ctx context.Context, actor domain.Principal, v domain.Vehicle) (*domain.Driver, error) {
	v = domain.Vehicle{
		Model: strings.TrimSpace(v.Model),
		Plate: strings.TrimSpace(v.Plate),
		Color: strings.TrimSpace(v.Color),
	}

	driver, err := ownDriver(ctx, s.drivers, actor)
	if err != nil {
		return nil, err
	}
	if v.Model == "" || v.Plate == "" {
		return nil, ErrInvalidVehicle
	}

	if err := s.drivers.UpdateVehicle(ctx, driver.ID, v); err != nil {
		return nil, err
	}
	updated, err := s.drivers.GetByID(ctx, driver.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver vehicle updated", "driver_id", driver.ID)
	return updated, nil
}

// RideRequests returns the driver's ongoing ride if there is one, otherwise
// the live REQUESTED rides bound to the driver.
func (s *DriverService) RideRequests(ctx context.Context, actor domain.Principal) ([]*domain.Ride, error) {
	driver, err := ownDriver(ctx, s.drivers, actor)
	if err != nil {
		return nil, err
	}

	active, err := s.rides.FindActiveByDriver(ctx, driver.ID)
	if err == nil {
		return []*domain.Ride{active}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return s.rides.ListRequestedForDriver(ctx, driver.ID, s.now())
}

// DriverStats is the driver's lifetime summary.
type DriverStats struct {
	DriverID        string
	Status          domain.DriverStatus
	TotalRides      int
	TotalEarnings   float64
	TotalDistanceKm float64
	AverageRating   float64
	TotalRatings    int
}

// Stats returns the caller's totals.
func (s *DriverService) Stats(ctx context.Context, actor domain.Principal) (*DriverStats, error) {
	driver, err := ownDriver(ctx, s.drivers, actor)
	if err != nil {
		return nil, err
	}
	return &DriverStats{
		DriverID:        driver.ID,
		Status:          driver.Status,
		TotalRides:      driver.TotalRides,
		TotalEarnings:   driver.TotalEarnings,
		TotalDistanceKm: driver.TotalDistanceKm,
		AverageRating:   driver.Rating.AverageRating,
		TotalRatings:    driver.Rating.TotalRatings,
	}, nil
}

// Nearby returns positions from the driver GEO index within radiusKm of the
// point, nearest first. It is advisory: dispatch never reads it.
func (s *DriverService) Nearby(ctx context.Context, at domain.Point, radiusKm float64) ([]redis.DriverPosition, error) {
	if !at.Valid() {
		return nil, ErrInvalidLocation
	}
	if radiusKm <= 0 {
		radiusKm = s.nearbyRadiusKm
	}
	if s.locations == nil {
		return nil, nil
	}
	return s.locations.FindNearbyDrivers(ctx, at.Lat(), at.Lng(), radiusKm)
}

// SweepIdle moves AVAILABLE drivers not seen for longer than idle to
// UNAVAILABLE.
func (s *DriverService) SweepIdle(ctx context.Context, idle time.Duration) (int64, error) {
	n, err := s.drivers.MarkIdleUnavailable(ctx, s.now().Add(-idle))
	if err != nil {
		return 0, err
	}
	observability.DriversSweptTotal.Add(float64(n))
	return n, nil
}

// RunOfflineSweeper calls SweepIdle every interval until ctx is done.
func (s *DriverService) RunOfflineSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepIdle(ctx, idle)
			if err != nil {
				s.logger.Error("offline sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("idle drivers marked unavailable", "count", n)
			}
		}
	}
}

func (s *DriverService) forgetPosition(ctx context.Context, driverID string) {
	if s.locations == nil {
		return
	}
	if err := s.locations.RemoveLocation(ctx, driverID); err != nil {
		s.logger.Warn("driver geo index removal failed", "driver_id", driverID, "error", err)
	}
}

// ownDriver resolves the driver profile of the calling user.
func ownDriver(ctx context.Context, drivers repository.DriverRepository, actor domain.Principal) (*domain.Driver, error) {
	if actor.UserID == "" {
		return nil, ErrMissingPrincipal
	}
	if actor.Role != domain.RoleDriver {
		return nil, ErrRoleNotAllowed
	}
	driver, err := drivers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDriverProfileNotFound
		}
		return nil, err
	}
	return driver, nil
}
