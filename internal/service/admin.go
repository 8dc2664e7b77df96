package service

import (
	"context"
	"errors"
	"log/slog"

	"rideengine/internal/domain"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
)

// AdminService handles operator actions on drivers and rides.
type AdminService struct {
	tx        repository.Transactor
	drivers   repository.DriverRepository
	rides     repository.RideRepository
	locations redis.LocationStoreInterface
	cache     redis.RideCacheInterface
	logger    *slog.Logger
}

// NewAdminService creates a new AdminService. locations and cache may be nil.
func NewAdminService(
	tx repository.Transactor,
	drivers repository.DriverRepository,
	rides repository.RideRepository,
	locations redis.LocationStoreInterface,
	cache redis.RideCacheInterface,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		tx:        tx,
		drivers:   drivers,
		rides:     rides,
		locations: locations,
		cache:     cache,
		logger:    logger,
	}
}

// SuspendDriver takes an idle driver out of dispatch and blocks the user.
func (s *AdminService) SuspendDriver(ctx context.Context, actor domain.Principal, driverID string) (*domain.Driver, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	var result *domain.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		driver, err := repos.Drivers.GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		switch driver.Status {
		case domain.DriverStatusSuspended:
			return ErrDriverAlreadySuspended
		case domain.DriverStatusRiding:
			return ErrDriverBusy
		}

		ok, err := repos.Drivers.TransitionStatus(ctx, driverID, domain.DriverStatusSuspended,
			domain.DriverStatusAvailable, domain.DriverStatusUnavailable)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDriverBusy
		}
		if err := repos.Users.SetBlocked(ctx, driver.UserID, true); err != nil {
			return err
		}

		result, err = repos.Drivers.GetByID(ctx, driverID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.locations != nil {
		if err := s.locations.RemoveLocation(ctx, driverID); err != nil {
			s.logger.Warn("driver geo index removal failed", "driver_id", driverID, "error", err)
		}
	}
	s.logger.Info("driver suspended", "driver_id", driverID, "admin_id", actor.UserID)
	return result, nil
}

// ReinstateDriver returns an idle or suspended driver to AVAILABLE and
// unblocks the user.
func (s *AdminService) ReinstateDriver(ctx context.Context, actor domain.Principal, driverID string) (*domain.Driver, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	var result *domain.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		driver, err := repos.Drivers.GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		switch driver.Status {
		case domain.DriverStatusAvailable:
			return ErrDriverAlreadyAvailable
		case domain.DriverStatusRiding:
			return ErrDriverBusy
		}

		ok, err := repos.Drivers.TransitionStatus(ctx, driverID, domain.DriverStatusAvailable,
			domain.DriverStatusSuspended, domain.DriverStatusUnavailable)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if err := repos.Users.SetBlocked(ctx, driver.UserID, false); err != nil {
			return err
		}

		result, err = repos.Drivers.GetByID(ctx, driverID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver reinstated", "driver_id", driverID, "admin_id", actor.UserID)
	return result, nil
}

// SetUserBlocked blocks or unblocks any user. Blocking a driver also
// suspends the driver profile, so a driver on a ride cannot be blocked.
// Unblocking leaves a suspended driver suspended until reinstated.
func (s *AdminService) SetUserBlocked(ctx context.Context, actor domain.Principal, userID string, blocked bool) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	var (
		result    *domain.User
		suspended string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsBlocked == blocked {
			if blocked {
				return ErrUserAlreadyBlocked
			}
			return ErrUserNotBlocked
		}

		if blocked && user.Role == domain.RoleDriver {
			driverID, err := suspendDriverOf(ctx, repos.Drivers, userID)
			if err != nil {
				return err
			}
			suspended = driverID
		}
		if err := repos.Users.SetBlocked(ctx, userID, blocked); err != nil {
			return err
		}

		result, err = repos.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if suspended != "" && s.locations != nil {
		if err := s.locations.RemoveLocation(ctx, suspended); err != nil {
			s.logger.Warn("driver geo index removal failed", "driver_id", suspended, "error", err)
		}
	}
	s.logger.Info("user block changed", "user_id", userID, "blocked", blocked, "admin_id", actor.UserID)
	return result, nil
}

// suspendDriverOf suspends the driver profile owned by userID, if any, and
// returns its ID.
func suspendDriverOf(ctx context.Context, drivers repository.DriverRepository, userID string) (string, error) {
	driver, err := drivers.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	switch driver.Status {
	case domain.DriverStatusSuspended:
		return driver.ID, nil
	case domain.DriverStatusRiding:
		return "", ErrDriverBusy
	}
	ok, err := drivers.TransitionStatus(ctx, driver.ID, domain.DriverStatusSuspended,
		domain.DriverStatusAvailable, domain.DriverStatusUnavailable)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrDriverBusy
	}
	return driver.ID, nil
}

// SetDriverApproval approves or disapproves a driver for dispatch.
func (s *AdminService) SetDriverApproval(ctx context.Context, actor domain.Principal, driverID string, approved bool) (*domain.Driver, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	if err := s.drivers.SetApproval(ctx, driverID, approved); err != nil {
		return nil, err
	}
	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver approval changed", "driver_id", driverID, "approved", approved, "admin_id", actor.UserID)
	return driver, nil
}

// PurgeRide deletes a completed ride.
func (s *AdminService) PurgeRide(ctx context.Context, actor domain.Principal, rideID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if rideID == "" {
		return ErrInvalidRideID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.Status != domain.RideStatusCompleted {
		return ErrRideNotPurgeable
	}

	deleted, err := s.rides.DeleteCompleted(ctx, rideID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if s.cache != nil {
		if err := s.cache.InvalidateRide(ctx, rideID); err != nil {
			s.logger.Warn("ride cache invalidation failed", "ride_id", rideID, "error", err)
		}
	}
	s.logger.Info("ride purged", "ride_id", rideID, "admin_id", actor.UserID)
	return nil
}

func requireAdmin(actor domain.Principal) error {
	if actor.UserID == "" {
		return ErrMissingPrincipal
	}
	if !actor.IsAdmin() {
		return ErrRoleNotAllowed
	}
	return nil
}

// ListDrivers returns every driver profile.
func (s *AdminService) ListDrivers(ctx context.Context, actor domain.Principal) ([]*domain.Driver, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.drivers.GetAll(ctx)
}
